package httpapi

import (
	"html/template"
	"net/http"

	"github.com/gorilla/mux"
)

// The admin views are rendered directly with html/template: they're a
// handful of small, static pages, not worth pulling in a templating
// engine for.

var indexTemplate = template.Must(template.New("index").Parse(`<!doctype html>
<title>tablejohn</title>
<h1>Queue</h1>
<table border="1" cellpadding="4">
<tr><th>hash</th><th>priority</th><th>date</th><th></th></tr>
{{range .Queue}}
<tr>
<td><a href="/commit/{{.Hash}}">{{.Hash}}</a></td>
<td>{{.Priority}}</td>
<td>{{.Date}}</td>
<td>
<form method="post" action="/admin/queue/increase" style="display:inline"><input type="hidden" name="hash" value="{{.Hash}}"><button>+</button></form>
<form method="post" action="/admin/queue/decrease" style="display:inline"><input type="hidden" name="hash" value="{{.Hash}}"><button>-</button></form>
<form method="post" action="/admin/queue/delete" style="display:inline"><input type="hidden" name="hash" value="{{.Hash}}"><button>delete</button></form>
</td>
</tr>
{{end}}
</table>

<h1>Refs</h1>
<form method="post" action="/admin/refs/update"><button>update now</button></form>
<table border="1" cellpadding="4">
<tr><th>name</th><th>hash</th><th>tracked</th><th></th></tr>
{{range .Refs}}
<tr>
<td>{{.Name}}</td>
<td><a href="/commit/{{.Hash}}">{{.Hash}}</a></td>
<td>{{.Tracked}}</td>
<td>
{{if .Tracked}}
<form method="post" action="/admin/refs/untrack" style="display:inline"><input type="hidden" name="name" value="{{.Name}}"><button>untrack</button></form>
{{else}}
<form method="post" action="/admin/refs/track" style="display:inline"><input type="hidden" name="name" value="{{.Name}}"><button>track</button></form>
{{end}}
</td>
</tr>
{{end}}
</table>

<h1>Workers</h1>
<table border="1" cellpadding="4">
<tr><th>name</th><th>status</th><th>hash</th></tr>
{{range $name, $status := .Workers}}
<tr><td>{{$name}}</td><td>{{$status.Type}}</td><td>{{$status.Hash}}</td></tr>
{{end}}
</table>
`))

var commitTemplate = template.Must(template.New("commit").Parse(`<!doctype html>
<title>{{.Commit.Hash}} - tablejohn</title>
<h1>{{.Commit.Hash}}</h1>
<p>{{.Commit.Message}}</p>
<p>author: {{.Commit.Author}} ({{.Commit.AuthorDate}})</p>
<p>committer: {{.Commit.Committer}} ({{.Commit.CommitterDate}})</p>
<p>reachable: {{.Commit.Reachable}}</p>

<form method="post" action="/admin/queue/add">
<input type="hidden" name="hash" value="{{.Commit.Hash}}">
priority: <input type="text" name="priority" value="0">
<button>enqueue</button>
</form>

<h2>Runs</h2>
<table border="1" cellpadding="4">
<tr><th>id</th><th>bench method</th><th>start</th><th>end</th><th>exit code</th></tr>
{{range .Runs}}
<tr><td>{{.ID}}</td><td>{{.BenchMethod}}</td><td>{{.Start}}</td><td>{{.End}}</td><td>{{.ExitCode}}</td></tr>
{{end}}
</table>
`))

type indexData struct {
	Queue   []queueRow
	Refs    []refRow
	Workers map[string]workerRow
}

type queueRow struct {
	Hash     string
	Priority int
	Date     string
}

type refRow struct {
	Name    string
	Hash    string
	Tracked bool
}

type workerRow struct {
	Type string
	Hash string
}

// handleIndex renders the queue/refs/worker dashboard.
func (srv *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	queue, err := srv.queue.Ordered(r.Context())
	if err != nil {
		srv.logger.Error("load queue failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	refs, err := srv.store.Refs(r.Context())
	if err != nil {
		srv.logger.Error("load refs failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	data := indexData{Workers: map[string]workerRow{}}

	for _, e := range queue {
		data.Queue = append(data.Queue, queueRow{Hash: e.Hash, Priority: e.Priority, Date: e.Date.String()})
	}

	for _, ref := range refs {
		data.Refs = append(data.Refs, refRow{Name: ref.Name, Hash: ref.Hash, Tracked: ref.Tracked})
	}

	for name, status := range srv.registry.Snapshot() {
		data.Workers[name] = workerRow{Type: status.Type, Hash: status.Hash}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if err := indexTemplate.Execute(w, data); err != nil {
		srv.logger.Error("render index failed", "error", err)
	}
}

type commitData struct {
	Commit any
	Runs   any
}

// handleCommitDetail renders one commit's metadata and run history.
func (srv *Server) handleCommitDetail(w http.ResponseWriter, r *http.Request) {
	hash := mux.Vars(r)["hash"]

	commit, err := srv.store.LoadCommit(r.Context(), hash)
	if err != nil {
		http.Error(w, "commit not found", http.StatusNotFound)

		return
	}

	runs, err := srv.store.RunsForHash(r.Context(), hash)
	if err != nil {
		srv.logger.Error("load runs failed", "hash", hash, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if err := commitTemplate.Execute(w, commitData{Commit: commit, Runs: runs}); err != nil {
		srv.logger.Error("render commit detail failed", "hash", hash, "error", err)
	}
}
