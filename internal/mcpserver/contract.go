package mcpserver

// CardFormatContract describes how a card document is laid out on the board
// branch, for LLM consumers that read or write cards.
const CardFormatContract = `# ganban Card Format Contract

Every card is one Markdown document stored at ` + "`" + `.all/<id>.md` + "`" + ` on the
` + "`" + `ganban` + "`" + ` branch. Columns link to cards; a card linked from no column is archived.

## Structure

` + "```" + `markdown
---
labels:                 # OPTIONAL – YAML list; names are matched case-insensitively
  - bug
assigned: Jane Doe      # OPTIONAL – free text, usually a committer name
due: 2026-11-01         # OPTIONAL – ISO-8601 date
deps:                   # OPTIONAL – ids of cards that must be done first
  - "3"
done: false             # OPTIONAL – marks the card finished
---

# Card title

Body of the first section.

## Another section

More text.
` + "```" + `

## Rules

1. **The first heading is the title.** It is written as ` + "`" + `# ` + "`" + `; every later
   section is written as ` + "`" + `## ` + "`" + `.
2. **Front matter is optional.** When present it must be the first thing in the
   document, fenced by ` + "`" + `---` + "`" + ` lines.
3. **Headings inside bodies** are demoted to ` + "`" + `###` + "`" + ` when saved.
4. **A card is blocked** while any card in ` + "`" + `deps` + "`" + ` is not done.
5. **Ids** are assigned by the board. Never invent one; use ` + "`" + `create_card` + "`" + `.

## Tools

- ` + "`" + `get_board` + "`" + ` returns columns, cards and labels.
- ` + "`" + `create_card` + "`" + `, ` + "`" + `update_card` + "`" + `, ` + "`" + `move_card` + "`" + ` and ` + "`" + `archive_card` + "`" + ` commit immediately.
- ` + "`" + `update_card` + "`" + ` replaces the whole document. Start from ` + "`" + `get_card_document` + "`" + ` and keep
  the front matter keys you do not mean to remove.
- ` + "`" + `sync_board` + "`" + ` fetches, merges and pushes the board branch.
`
