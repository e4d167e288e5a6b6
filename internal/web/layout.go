package web

import (
	"context"
	"io"

	"dles/internal/roles"

	"github.com/a-h/templ"
)

// page wraps body in the shared document shell and navigation.
func page(title string, viewer Viewer, script string, body func(h *htmlWriter)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>`)
		h.text(title)
		h.raw(` | dles</title>
    <link rel="stylesheet" href="`, esc(assetPath("/static/styles.css")), `"/>
    <script src="`, esc(assetPath("/static/app.js")), `" defer></script>
  </head>
  <body data-signed-in="`)
		if viewer.SignedIn {
			h.raw(`true`)
		} else {
			h.raw(`false`)
		}
		h.raw(`">
    <header class="topbar">
      <a class="brand" href="/">dles</a>
      <nav>
        <a href="/">Games</a>
        <a href="/race/new">Race</a>`)
		if viewer.SignedIn {
			h.raw(`
        <a href="/lists">Lists</a>
        <a href="/dashboard">Stats</a>
        <a href="/race/stats">Race history</a>
        <a href="/submit">Submit</a>`)
		}
		if viewer.SignedIn && roles.CanAccessAdmin(viewer.EffectiveRole) {
			h.raw(`
        <a href="/admin">Admin</a>`)
		}
		h.raw(`
      </nav>`)
		if viewer.SignedIn {
			h.raw(`
      <div class="account"><span>`)
			h.text(viewer.Name)
			h.raw(`</span> <button type="button" data-action="sign-out">Sign out</button></div>`)
		}
		h.raw(`
    </header>`)
		if viewer.Previewing() {
			h.raw(`
    <div class="banner preview">Viewing as `)
			h.text(string(viewer.EffectiveRole))
			h.raw(` <button type="button" data-action="clear-view-as">Stop preview</button></div>`)
		}
		h.raw(`
    <main class="shell">
`)
		body(h)
		h.raw(`
    </main>`)
		if script != "" {
			h.raw(`
    <script>`, script, `</script>`)
		}
		h.raw(`
  </body>
</html>
`)
		return h.err
	})
}

func Maintenance() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Maintenance | dles</title>
    <link rel="stylesheet" href="/static/styles.css"/>
  </head>
  <body>
    <main class="shell">
      <section class="panel">
        <h1>Down for maintenance</h1>
        <p>We are tuning a few things. Your games will be back shortly.</p>
      </section>
    </main>
  </body>
</html>
`)
		return err
	})
}

func topicChips(h *htmlWriter, topics, active []string, base string) {
	activeSet := make(map[string]bool, len(active))
	for _, t := range active {
		activeSet[t] = true
	}
	h.raw(`<div class="chips">`)
	for _, topic := range topics {
		class := "chip"
		if activeSet[topic] {
			class += " active"
		}
		h.raw(`<a class="`, class, `" href="`, esc(base+"?topics="+topic), `">`)
		h.text(topic)
		h.raw(`</a>`)
	}
	h.raw(`</div>`)
}

func topicOptions(h *htmlWriter, topics []string) {
	for _, topic := range topics {
		h.raw(`<option value="`, esc(topic), `">`)
		h.text(topic)
		h.raw(`</option>`)
	}
}
