package proxy

import (
	"html/template"
	"net/http"
)

var noticeTmpl = template.Must(template.New("notice").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>Blocked</title></head>
<body>
<h1>This site is blocked</h1>
{{if .}}<p>The page <code>{{.}}</code> is on your blocklist.</p>{{end}}
</body></html>
`))

// renderNotice writes the minimal notice page for a blocked target.
func renderNotice(w http.ResponseWriter, target string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_ = noticeTmpl.Execute(w, target)
}
