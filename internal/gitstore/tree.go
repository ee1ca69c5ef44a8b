package gitstore

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/starford/ganban/internal/board"
	"github.com/starford/ganban/internal/gitrepo"
	"github.com/starford/ganban/internal/ids"
	"github.com/starford/ganban/internal/node"
	"github.com/starford/ganban/internal/parser"
)

var prefixedRe = regexp.MustCompile(`^([^.]+)\.(.+)$`)

// splitPrefixed splits "prefix.rest" at the first dot.
func splitPrefixed(name string) (prefix, rest string, ok bool) {
	m := prefixedRe.FindStringSubmatch(name)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// parseDirName splits a column directory name into its order, display name
// and hidden flag. ok is false for directories that are not columns.
func parseDirName(name string) (order, title string, hidden, ok bool) {
	hidden = strings.HasPrefix(name, ".")
	order, slug, ok := splitPrefixed(strings.TrimPrefix(name, "."))
	if !ok {
		return "", "", false, false
	}
	return order, titleFromSlug(slug), hidden, true
}

func titleFromSlug(slug string) string {
	s := strings.NewReplacer("-", " ", "_", " ").Replace(slug)
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func linkName(pos int, title string) string {
	return fmt.Sprintf("%02d.%s.md", pos, board.Slugify(title))
}

func cardTarget(id string) string {
	return "../" + allDir + "/" + id + ".md"
}

type columnEntry struct {
	order, title, dir string
	hidden            bool
	entries           []gitrepo.TreeEntry
}

type linkEntry struct {
	pos, slug string
	entry     gitrepo.TreeEntry
}

// readTree builds a board from the tree of commit. Unknown entries are
// ignored.
func (s *Store) readTree(ctx context.Context, commit string) (*board.Board, error) {
	root, err := s.repo.LsTree(ctx, commit)
	if err != nil {
		return nil, fmt.Errorf("gitstore: list root: %w", err)
	}

	var (
		boardIndex string
		cardBlobs  = map[string]string{}
		cardOrder  []string
		columns    []columnEntry
		wanted     []string
	)
	for _, e := range root {
		switch {
		case e.Name == indexFile && e.IsRegular():
			boardIndex = e.Hash
			wanted = append(wanted, e.Hash)
		case e.Name == allDir && e.IsTree():
			entries, err := s.repo.LsTree(ctx, e.Hash)
			if err != nil {
				return nil, fmt.Errorf("gitstore: list %s: %w", allDir, err)
			}
			for _, ce := range entries {
				if !ce.IsRegular() || !strings.HasSuffix(ce.Name, ".md") {
					continue
				}
				id := strings.TrimSuffix(ce.Name, ".md")
				cardBlobs[id] = ce.Hash
				cardOrder = append(cardOrder, id)
				wanted = append(wanted, ce.Hash)
			}
		case e.IsTree():
			order, title, hidden, ok := parseDirName(e.Name)
			if !ok {
				continue
			}
			entries, err := s.repo.LsTree(ctx, e.Hash)
			if err != nil {
				return nil, fmt.Errorf("gitstore: list %s: %w", e.Name, err)
			}
			for _, ce := range entries {
				if ce.Type == "blob" && strings.HasSuffix(ce.Name, ".md") {
					wanted = append(wanted, ce.Hash)
				}
			}
			columns = append(columns, columnEntry{order: order, title: title, dir: e.Name, hidden: hidden, entries: entries})
		}
	}

	blobs, err := s.repo.CatBlobs(ctx, dedupe(wanted))
	if err != nil {
		return nil, fmt.Errorf("gitstore: read blobs: %w", err)
	}

	b := board.New(s.repo.Dir())
	root0 := b.Root()

	if boardIndex != "" {
		sections, meta := parseDocument(blobs[boardIndex], board.DefaultTitle)
		root0.Set(board.KeySections, sections)
		root0.Set(board.KeyMeta, meta)
	} else {
		b.Sections().Set(board.DefaultTitle, "")
	}

	cards := node.NewList()
	ids.Sort(cardOrder)
	for _, id := range cardOrder {
		cards.Set(id, cardNode(blobs[cardBlobs[id]], id))
	}

	slices.SortStableFunc(columns, func(a, b columnEntry) int { return ids.Compare(a.order, b.order) })
	cols := node.NewList()
	for _, ce := range columns {
		col := s.readColumn(ce, blobs, cards)
		cols.Set(ce.order, col)
	}

	root0.Set(board.KeyCards, cards)
	root0.Set(board.KeyColumns, cols)
	return b, nil
}

func (s *Store) readColumn(ce columnEntry, blobs map[string][]byte, cards *node.ListNode) *node.Node {
	col := board.NewColumn(ce.order, ce.title, ce.hidden).Node()
	col.Set(board.KeyDirPath, ce.dir)

	var links []linkEntry
	for _, e := range ce.entries {
		if e.Type != "blob" || !strings.HasSuffix(e.Name, ".md") {
			continue
		}
		if e.Name == indexFile {
			sections, meta := parseDocument(blobs[e.Hash], ce.title)
			col.Set(board.KeySections, sections)
			col.Set(board.KeyMeta, meta)
			continue
		}
		pos, slug, ok := splitPrefixed(strings.TrimSuffix(e.Name, ".md"))
		if !ok {
			continue
		}
		links = append(links, linkEntry{pos: pos, slug: slug, entry: e})
	}
	slices.SortStableFunc(links, func(a, b linkEntry) int { return ids.Compare(a.pos, b.pos) })

	var ordered []string
	for _, l := range links {
		if l.entry.IsSymlink() {
			id := strings.TrimSuffix(path.Base(string(blobs[l.entry.Hash])), ".md")
			if !cards.Has(id) {
				s.logger.Debug("gitstore: dangling card link", slog.String("column", ce.dir), slog.String("link", l.entry.Name))
				continue
			}
			ordered = append(ordered, id)
			continue
		}
		// A regular file dropped into a column becomes a new card.
		id := ids.NextAfter(cards.Keys())
		cards.Set(id, cardNode(blobs[l.entry.Hash], l.slug))
		ordered = append(ordered, id)
	}
	col.Set(board.KeyLinks, append([]string{}, ordered...))
	return col
}

func cardNode(data []byte, fallbackTitle string) *node.Node {
	sections, meta := parseDocument(data, fallbackTitle)
	n := node.New()
	n.Set(board.KeySections, sections)
	n.Set(board.KeyMeta, meta)
	return n
}

func parseDocument(data []byte, fallbackTitle string) (*node.ListNode, *node.Node) {
	doc, err := parser.Parse(data)
	if err != nil {
		doc = &parser.Document{Sections: []parser.Section{{Body: string(data)}}}
	}
	return board.DocumentNodes(doc, fallbackTitle)
}

func dedupe(hashes []string) []string {
	seen := make(map[string]bool, len(hashes))
	out := hashes[:0]
	for _, h := range hashes {
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	return out
}

// BuildTree writes every object of the board and returns the root tree id.
// Nothing is committed.
func (s *Store) BuildTree(ctx context.Context, b *board.Board) (string, error) {
	var cardEntries []gitrepo.TreeEntry
	for _, c := range b.AllCards() {
		blob, err := s.writeDocument(ctx, c.Sections(), c.Meta())
		if err != nil {
			return "", fmt.Errorf("gitstore: card %s: %w", c.ID(), err)
		}
		cardEntries = append(cardEntries, gitrepo.Blob(c.ID()+".md", blob))
	}
	allTree, err := s.repo.MkTree(ctx, cardEntries)
	if err != nil {
		return "", fmt.Errorf("gitstore: write %s: %w", allDir, err)
	}

	rootEntries := []gitrepo.TreeEntry{gitrepo.Subtree(allDir, allTree)}
	for _, col := range b.AllColumns() {
		tree, err := s.buildColumnTree(ctx, b, col)
		if err != nil {
			return "", fmt.Errorf("gitstore: column %s: %w", col.DirPath(), err)
		}
		rootEntries = append(rootEntries, gitrepo.Subtree(col.DirPath(), tree))
	}

	index, err := s.writeDocument(ctx, b.Sections(), b.Meta())
	if err != nil {
		return "", fmt.Errorf("gitstore: board index: %w", err)
	}
	rootEntries = append(rootEntries, gitrepo.Blob(indexFile, index))

	tree, err := s.repo.MkTree(ctx, rootEntries)
	if err != nil {
		return "", fmt.Errorf("gitstore: write root tree: %w", err)
	}
	return tree, nil
}

func (s *Store) buildColumnTree(ctx context.Context, b *board.Board, col *board.Column) (string, error) {
	index, err := s.writeDocument(ctx, col.Sections(), col.Meta())
	if err != nil {
		return "", err
	}
	entries := []gitrepo.TreeEntry{gitrepo.Blob(indexFile, index)}

	pos := 0
	for _, id := range col.Links() {
		card := b.Card(id)
		if card == nil {
			continue
		}
		pos++
		target, err := s.repo.HashObject(ctx, []byte(cardTarget(id)))
		if err != nil {
			return "", err
		}
		entries = append(entries, gitrepo.Symlink(linkName(pos, card.Title()), target))
	}
	return s.repo.MkTree(ctx, entries)
}

func (s *Store) writeDocument(ctx context.Context, sections *node.ListNode, meta *node.Node) (string, error) {
	data, err := parser.Serialize(board.NodeDocument(sections, meta))
	if err != nil {
		return "", err
	}
	return s.repo.HashObject(ctx, data)
}
