package mcpserver

// GuideContract tells agents how the directory guide chain is meant to be
// read. It is served as the vault://guide-contract resource.
const GuideContract = `# Vault Guide Contract

The vault is a tree of Markdown notes. Any directory may carry a guide file
with instructions for agents working in that part of the tree.

## Reading order

1. The root guide (resource ` + "`vault://guide`" + `) applies everywhere.
2. ` + "`get_guides`" + ` returns the guides from the first directory below the
   root down to the directory you asked for, parents first.
3. A deeper guide is more specific. When two guides disagree, follow the
   one that comes later in the list.

## Paths

- Paths are relative to the vault root and use forward slashes.
- Absolute paths and paths that leave the vault are refused with
  "access denied". Symbolic links are followed only while they stay inside
  the vault.
- Asking for a note path returns the guides of the directory holding it.

## Tools

- ` + "`get_guides(path)`" + ` guide chain for a directory or note.
- ` + "`read_note(path)`" + ` raw Markdown of one note.
- ` + "`list_notes(folder)`" + ` every .md path under a folder.
- ` + "`search_notes(query)`" + ` substring search over titles, bodies, and tags.
`
