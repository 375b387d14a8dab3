package mcpserver

// SceneFormatContract describes the scene document format that LLM
// consumers must produce when creating or saving scenes.
const SceneFormatContract = `# Scene Document Format

Every scene is stored as one UTF-8 JSON document.

## Structure

` + "```" + `json
{
  "type": "scene",
  "version": 2,
  "elements": [
    {"id": "r1", "type": "rectangle", "version": 1, "x": 0, "y": 0, "width": 120, "height": 60,
     "strokeColor": "#1e1e1e", "backgroundColor": "#a5d8ff"},
    {"id": "t1", "type": "text", "version": 1, "x": 10, "y": 20, "width": 80, "height": 20,
     "text": "Hello"}
  ],
  "appState": {"viewBackgroundColor": "#ffffff", "theme": "light"},
  "files": {}
}
` + "```" + `

## Rules

1. ` + "`" + `type` + "`" + ` MUST be ` + "`" + `"scene"` + "`" + `. Other documents are rejected as malformed.
2. Every element needs a non-empty ` + "`" + `id` + "`" + ` that is unique within the scene.
3. Bump an element's ` + "`" + `version` + "`" + ` whenever you change it. Previews are only
   regenerated when the set of element versions changes.
4. Deleting an element means setting ` + "`" + `"isDeleted": true` + "`" + `; it stays in the list.
5. Coordinates are canvas pixels; ` + "`" + `width` + "`" + ` and ` + "`" + `height` + "`" + ` must be non-negative.
6. Colors are CSS hex strings. ` + "`" + `appState.viewBackgroundColor` + "`" + ` defaults to white.
7. ` + "`" + `appState.theme` + "`" + ` is ` + "`" + `"light"` + "`" + ` or ` + "`" + `"dark"` + "`" + `; dark scenes get inverted previews.
8. Image elements reference ` + "`" + `files` + "`" + ` entries through ` + "`" + `fileId` + "`" + `. Each file has
   ` + "`" + `id` + "`" + `, ` + "`" + `mimeType` + "`" + ` and a ` + "`" + `dataURL` + "`" + `.

## Saving

- ` + "`" + `save_scene` + "`" + ` replaces the whole document. Read it first with ` + "`" + `read_scene` + "`" + `
  and pass the returned checksum as ` + "`" + `if_match` + "`" + ` to avoid overwriting concurrent edits.
- ` + "`" + `open_scene` + "`" + ` shows a scene in the live view; collaborative scenes join their room.
`
