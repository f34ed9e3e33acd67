package server

import "html/template"

var pages = template.Must(template.New("pages").Parse(`
{{define "success"}}<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>ClickUp MCP: signed in</title></head>
<body>
<h1>Signed in</h1>
{{if .Reattached}}<p id="reattached">This sign-in was added to the existing session below. If you did not start it from your own MCP client, sign out of that session now.</p>{{end}}
<p>Use this session id as the bearer token for <code>{{.MCPURL}}</code>:</p>
<pre id="session-id">{{.SessionID}}</pre>
{{if .WorkspaceID}}<p>Default workspace: <code>{{.WorkspaceID}}</code></p>{{end}}
<p>For the stdio transport, set <code>MCP_SESSION_ID</code> to the same value.</p>
</body>
</html>{{end}}
{{define "error"}}<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>ClickUp MCP: sign-in failed</title></head>
<body>
<h1>Sign-in failed</h1>
<p>{{.Message}}</p>
<p><a href="{{.AuthorizeURL}}">Start again</a></p>
</body>
</html>{{end}}
`))
