// Package boardservice coordinates the live board with its git store, the
// search index, and change notifications. It is the only writer of the live
// board: every read and mutation holds the service lock.
package boardservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ganban/internal/apperr"
	"github.com/starford/ganban/internal/board"
	"github.com/starford/ganban/internal/gitstore"
	"github.com/starford/ganban/internal/index"
	"github.com/starford/ganban/internal/sse"
	"github.com/starford/ganban/internal/syncer"
)

// Service owns the live board.
type Service struct {
	store    *gitstore.Store
	syncer   *syncer.Syncer
	db       index.CardIndex
	broker   *sse.Broker
	logger   *slog.Logger
	autosave bool

	mu   chan struct{}
	live *board.Board
}

// Option configures a Service.
type Option func(*Service)

// WithIndex keeps db in step with the board after every change.
func WithIndex(db index.CardIndex) Option {
	return func(s *Service) { s.db = db }
}

// WithBroker publishes change events to broker.
func WithBroker(broker *sse.Broker) Option {
	return func(s *Service) { s.broker = broker }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithAutosave controls whether every mutation is committed right away.
// It is on by default; when off, changes are committed by Save or Sync.
func WithAutosave(on bool) Option {
	return func(s *Service) { s.autosave = on }
}

// New loads the board from store.
func New(ctx context.Context, store *gitstore.Store, opts ...Option) (*Service, error) {
	s := &Service{
		store:    store,
		logger:   slog.Default(),
		autosave: true,
		mu:       make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(s)
	}
	s.syncer = syncer.New(store, s.logger)

	live, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	s.live = live
	s.reindex()
	return s, nil
}

// lock acquires the writer lock or gives up when ctx ends first.
func (s *Service) lock(ctx context.Context) error {
	select {
	case s.mu <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) unlock() { <-s.mu }

// Syncer returns the syncer bound to the service's store.
func (s *Service) Syncer() *syncer.Syncer { return s.syncer }

// SyncInterval returns the repository's sync interval in seconds.
func (s *Service) SyncInterval(ctx context.Context) (int, error) {
	if err := s.lock(ctx); err != nil {
		return 0, err
	}
	defer s.unlock()
	return s.live.SyncInterval(), nil
}

// Board returns a snapshot of the live board.
func (s *Service) Board(ctx context.Context) (BoardView, error) {
	if err := s.lock(ctx); err != nil {
		return BoardView{}, err
	}
	defer s.unlock()
	return boardView(s.live), nil
}

// Card returns one card.
func (s *Service) Card(ctx context.Context, id string) (CardView, error) {
	if err := s.lock(ctx); err != nil {
		return CardView{}, err
	}
	defer s.unlock()
	c := s.live.Card(id)
	if c == nil {
		return CardView{}, fmt.Errorf("card %s: %w", id, apperr.ErrNotFound)
	}
	return cardView(s.live, c), nil
}

// CreateCardInput describes a new card.
type CreateCardInput struct {
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Column   string   `json:"column"`
	Position *int     `json:"position"`
	Labels   []string `json:"labels"`
	Assigned string   `json:"assigned"`
	Due      string   `json:"due"`
}

// Validate checks the input.
func (in CreateCardInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&in.Position, validation.Min(0)),
	)
}

// CreateCard adds a card to a column, the first one by default.
func (s *Service) CreateCard(ctx context.Context, in CreateCardInput) (CardView, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := in.Validate(); err != nil {
		return CardView{}, invalid(err)
	}
	if err := s.lock(ctx); err != nil {
		return CardView{}, err
	}
	defer s.unlock()

	var col *board.Column
	if in.Column != "" {
		if col = s.live.Column(in.Column); col == nil {
			return CardView{}, fmt.Errorf("column %s: %w", in.Column, apperr.ErrNotFound)
		}
	}
	card := board.CreateCard(s.live, in.Title, in.Body, col, position(in.Position))
	meta := card.Meta()
	if len(in.Labels) > 0 {
		meta.Set(board.MetaLabels, in.Labels)
	}
	if in.Assigned != "" {
		meta.Set(board.MetaAssigned, in.Assigned)
	}
	if in.Due != "" {
		meta.Set(board.MetaDue, in.Due)
	}
	id := card.ID()

	if err := s.persist(ctx, "Create card "+id); err != nil {
		return CardView{}, err
	}
	s.publishCard(sse.CardCreated, id)
	return s.cardOrNotFound(id)
}

// MoveCardInput describes where to move a card.
type MoveCardInput struct {
	Column   string `json:"column"`
	Position *int   `json:"position"`
}

// Validate checks the input.
func (in MoveCardInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Column, validation.Required),
		validation.Field(&in.Position, validation.Min(0)),
	)
}

// MoveCard moves a card to a column and position.
func (s *Service) MoveCard(ctx context.Context, id string, in MoveCardInput) (CardView, error) {
	if err := in.Validate(); err != nil {
		return CardView{}, invalid(err)
	}
	if err := s.lock(ctx); err != nil {
		return CardView{}, err
	}
	defer s.unlock()

	col := s.live.Column(in.Column)
	if col == nil {
		return CardView{}, fmt.Errorf("column %s: %w", in.Column, apperr.ErrNotFound)
	}
	if err := board.MoveCard(s.live, id, col, position(in.Position)); err != nil {
		return CardView{}, err
	}
	if err := s.persist(ctx, fmt.Sprintf("Move card %s to %s", id, col.Name())); err != nil {
		return CardView{}, err
	}
	s.publishCard(sse.CardMoved, id)
	return s.cardOrNotFound(id)
}

// ArchiveCard unlinks a card from its column.
func (s *Service) ArchiveCard(ctx context.Context, id string) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	if err := board.ArchiveCard(s.live, id); err != nil {
		return err
	}
	if err := s.persist(ctx, "Archive card "+id); err != nil {
		return err
	}
	s.publishCard(sse.CardArchived, id)
	return nil
}

// CreateColumnInput describes a new column.
type CreateColumnInput struct {
	Name   string `json:"name"`
	Hidden bool   `json:"hidden"`
}

// Validate checks the input.
func (in CreateColumnInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Length(1, 100)),
	)
}

// CreateColumn appends a column.
func (s *Service) CreateColumn(ctx context.Context, in CreateColumnInput) (ColumnView, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := in.Validate(); err != nil {
		return ColumnView{}, invalid(err)
	}
	if err := s.lock(ctx); err != nil {
		return ColumnView{}, err
	}
	defer s.unlock()

	col, err := board.CreateColumn(s.live, in.Name, "", in.Hidden)
	if err != nil {
		return ColumnView{}, err
	}
	order := col.Order()
	if err := s.persist(ctx, "Create column "+in.Name); err != nil {
		return ColumnView{}, err
	}
	s.publishBoard("column.created", order)
	return s.columnOrNotFound(order)
}

// MoveColumn moves a column to position pos, renumbering every column.
func (s *Service) MoveColumn(ctx context.Context, order string, pos int) error {
	if pos < 0 {
		return invalid(errors.New("index: must be no less than 0"))
	}
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	col := s.live.Column(order)
	if col == nil {
		return fmt.Errorf("column %s: %w", order, apperr.ErrNotFound)
	}
	name := col.Name()
	board.MoveColumn(s.live, col, pos)
	if err := s.persist(ctx, "Move column "+name); err != nil {
		return err
	}
	s.publishBoard("column.moved", col.Order())
	return nil
}

// RenameColumn retitles a column.
func (s *Service) RenameColumn(ctx context.Context, order, name string) (ColumnView, error) {
	name = strings.TrimSpace(name)
	if err := validation.Validate(name, validation.Required, validation.Length(1, 100)); err != nil {
		return ColumnView{}, invalid(fmt.Errorf("name: %w", err))
	}
	if err := s.lock(ctx); err != nil {
		return ColumnView{}, err
	}
	defer s.unlock()

	col := s.live.Column(order)
	if col == nil {
		return ColumnView{}, fmt.Errorf("column %s: %w", order, apperr.ErrNotFound)
	}
	board.RenameColumn(col, name)
	if err := s.persist(ctx, "Rename column "+order+" to "+name); err != nil {
		return ColumnView{}, err
	}
	s.publishBoard("column.renamed", order)
	return s.columnOrNotFound(order)
}

// ArchiveColumn removes a column; its cards become archived.
func (s *Service) ArchiveColumn(ctx context.Context, order string) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	if err := board.ArchiveColumn(s.live, order); err != nil {
		return err
	}
	if err := s.persist(ctx, "Archive column "+order); err != nil {
		return err
	}
	s.publishBoard("column.archived", order)
	return nil
}

// RenameLabel renames a label everywhere and returns the number of cards changed.
func (s *Service) RenameLabel(ctx context.Context, oldName, newName string) (int, error) {
	if strings.TrimSpace(newName) == "" {
		return 0, invalid(errors.New("name: cannot be blank"))
	}
	if err := s.lock(ctx); err != nil {
		return 0, err
	}
	defer s.unlock()

	if !s.hasLabel(oldName) {
		return 0, fmt.Errorf("label %q: %w", oldName, apperr.ErrNotFound)
	}
	n := board.RenameLabel(s.live, oldName, newName)
	if err := s.persist(ctx, fmt.Sprintf("Rename label %s to %s", oldName, newName)); err != nil {
		return 0, err
	}
	s.publishBoard("label.renamed", board.NormalizeLabel(newName))
	return n, nil
}

// DeleteLabel removes a label everywhere and returns the number of cards changed.
func (s *Service) DeleteLabel(ctx context.Context, name string) (int, error) {
	if err := s.lock(ctx); err != nil {
		return 0, err
	}
	defer s.unlock()

	if !s.hasLabel(name) {
		return 0, fmt.Errorf("label %q: %w", name, apperr.ErrNotFound)
	}
	n := board.DeleteLabel(s.live, name)
	if err := s.persist(ctx, "Delete label "+name); err != nil {
		return 0, err
	}
	s.publishBoard("label.deleted", board.NormalizeLabel(name))
	return n, nil
}

func (s *Service) hasLabel(name string) bool {
	labels := s.live.Labels()
	return labels != nil && labels.Has(board.NormalizeLabel(name))
}

// Save commits the live board and returns the branch commit.
func (s *Service) Save(ctx context.Context) (string, error) {
	if err := s.lock(ctx); err != nil {
		return "", err
	}
	defer s.unlock()

	if err := s.commit(ctx, "Update board"); err != nil {
		return "", err
	}
	if s.broker != nil {
		s.broker.Publish(sse.Event{Type: "board.saved", Data: map[string]string{"key": s.live.Commit()}})
	}
	return s.live.Commit(), nil
}

// Sync runs a live sync cycle against every remote.
func (s *Service) Sync(ctx context.Context) syncer.Result {
	if err := s.lock(ctx); err != nil {
		res := syncer.Result{Fetched: []string{}, Merged: []string{}}
		msg := err.Error()
		res.Error = &msg
		return res
	}
	defer s.unlock()

	before := s.live.Commit()
	res := s.syncer.RunLive(ctx, s.live)
	if s.live.Commit() != before {
		s.reindex()
		s.publishBoard("board.synced", s.live.Commit())
	}
	return res
}

// Reload picks up commits another process made on the board branch. Local
// changes that were not committed yet are merged with them.
func (s *Service) Reload(ctx context.Context) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	mr, err := s.store.CheckForMerge(ctx, s.live)
	if err != nil || mr == nil {
		return err
	}
	if _, err := s.store.TryAutoMerge(ctx, s.live, mr, "Auto-merge local changes"); err != nil {
		return err
	}
	if err := s.syncer.Refresh(ctx, s.live); err != nil {
		return err
	}
	s.reindex()
	s.publishBoard("board.reloaded", s.live.Commit())
	s.logger.Info("boardservice: reloaded", slog.String("commit", s.live.Commit()))
	return nil
}

// Search runs a full-text search over active cards.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	if s.db == nil {
		return nil, errors.New("search index not configured")
	}
	if strings.TrimSpace(query) == "" {
		return []index.SearchResult{}, nil
	}
	res, err := s.db.Search(query, limit)
	if res == nil {
		res = []index.SearchResult{}
	}
	return res, err
}

// ListCards returns indexed cards matching filter in column order.
func (s *Service) ListCards(_ context.Context, filter index.ListFilter) ([]index.CardRow, error) {
	if s.db == nil {
		return nil, errors.New("search index not configured")
	}
	rows, err := s.db.ListCards(filter)
	if rows == nil {
		rows = []index.CardRow{}
	}
	return rows, err
}

// Dependents returns the ids of cards that list id in their deps.
func (s *Service) Dependents(ctx context.Context, id string) ([]string, error) {
	if s.db == nil {
		return nil, errors.New("search index not configured")
	}
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	found := s.live.Card(id) != nil
	s.unlock()
	if !found {
		return nil, fmt.Errorf("card %s: %w", id, apperr.ErrNotFound)
	}
	deps, err := s.db.Dependents(id)
	if deps == nil {
		deps = []string{}
	}
	return deps, err
}

// persist commits after a mutation when autosave is on, and refreshes the
// search index either way.
func (s *Service) persist(ctx context.Context, message string) error {
	if s.autosave {
		if err := s.commit(ctx, message); err != nil {
			return err
		}
	}
	s.reindex()
	return nil
}

// commit saves the live board, merging with commits made elsewhere. A
// conflicting change is dropped: the live board is reset to the branch.
func (s *Service) commit(ctx context.Context, message string) error {
	_, merged, err := s.store.SaveOrMerge(ctx, s.live, message)
	if errors.Is(err, apperr.ErrConflict) {
		s.logger.Warn("boardservice: conflict, discarding change", slog.String("error", err.Error()))
		if rerr := s.resetToBranch(ctx); rerr != nil {
			s.logger.Error("boardservice: reset failed", slog.String("error", rerr.Error()))
		}
		return err
	}
	if err != nil {
		return err
	}
	if merged {
		return s.syncer.Refresh(ctx, s.live)
	}
	return nil
}

func (s *Service) resetToBranch(ctx context.Context) error {
	fresh, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	s.live.Root().Update(fresh.Root())
	s.reindex()
	return nil
}

func (s *Service) reindex() {
	if s.db == nil {
		return
	}
	if err := index.Sync(s.db, s.live, s.logger); err != nil {
		s.logger.Warn("boardservice: reindex failed", slog.String("error", err.Error()))
	}
}

func (s *Service) publishCard(kind, id string) {
	if s.broker != nil {
		s.broker.PublishCardEvent(kind, id)
	}
}

func (s *Service) publishBoard(typ, key string) {
	if s.broker != nil {
		s.broker.PublishChange(typ, key)
	}
}

func (s *Service) cardOrNotFound(id string) (CardView, error) {
	c := s.live.Card(id)
	if c == nil {
		return CardView{}, fmt.Errorf("card %s: %w", id, apperr.ErrNotFound)
	}
	return cardView(s.live, c), nil
}

func (s *Service) columnOrNotFound(order string) (ColumnView, error) {
	col := s.live.Column(order)
	if col == nil {
		return ColumnView{}, fmt.Errorf("column %s: %w", order, apperr.ErrNotFound)
	}
	return columnView(col), nil
}

func position(p *int) int {
	if p == nil {
		return -1
	}
	return *p
}

func invalid(err error) error {
	return fmt.Errorf("%w: %v", apperr.ErrInvalid, err)
}
