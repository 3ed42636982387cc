package mcpserver

// DocumentFormatContract describes the canonical Markdown document
// format that LLM consumers should follow when creating or updating
// documents.
const DocumentFormatContract = `# Dagaz Document Format Contract

Every Markdown document stored in Dagaz MUST follow this structure.

## Structure

` + "```" + `markdown
---
title: Human-readable title        # REQUIRED – used in search, listings, graph
tags:                               # OPTIONAL – YAML list; used for filtering
  - tag-one
  - tag-two
created: 2026-01-15                 # OPTIONAL – ISO-8601 date or datetime
---

Body text in standard Markdown.

Use [[references]] to link other documents (without .md extension).
Use [[target|alias]] for display text that differs from the target.
` + "```" + `

## Rules

1. **YAML frontmatter is mandatory.** The ` + "```" + `---` + "```" + ` fences must be the first
   thing in the file (no leading blank lines).
2. **` + "`" + `title` + "`" + ` field is required.** It is the primary display name everywhere.
3. **Tags** are lowercase, kebab-case (e.g. ` + "`" + `client-x` + "`" + `, ` + "`" + `meeting-notes` + "`" + `).
4. **References** use double brackets: ` + "`" + `[[other-doc]]` + "`" + `. The target is the
   filename stem (no ` + "`" + `.md` + "`" + ` extension, path separators OK: ` + "`" + `[[folder/doc]]` + "`" + `).
5. **File paths** end with ` + "`" + `.md` + "`" + ` and use forward slashes.
6. **Encoding** is UTF-8 with a trailing newline.
7. **No HTML** unless absolutely necessary; prefer Markdown equivalents.

## Duplicates

Documents are deduplicated by content checksum. Before creating a
document from imported material, call ` + "`" + `registry_lookup` + "`" + ` with the
content's SHA-256 to check whether it is already registered.
`
