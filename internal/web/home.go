package web

import (
	"net/url"
	"strings"

	"github.com/a-h/templ"
)

const homeScript = `
document.querySelectorAll("[data-play]").forEach((link) => {
  link.addEventListener("click", () => {
    dles.api("PATCH", "/api/games/" + link.dataset.play + "/play").catch(() => {});
    link.closest(".game").classList.add("played");
  });
});
document.querySelectorAll("select[data-add-to-list]").forEach((select) => {
  select.addEventListener("change", async () => {
    if (!select.value) return;
    try {
      await dles.api("POST", "/api/lists/" + select.value + "/games", { gameId: select.dataset.addToList });
      dles.toast("Added to list");
    } catch (err) {
      dles.toast(err.message);
    }
    select.value = "";
  });
});
`

func Home(data HomeData) templ.Component {
	return page("Games", data.Viewer, homeScript, func(h *htmlWriter) {
		if data.Welcome != "" {
			h.raw(`<section class="banner welcome">`)
			h.text(data.Welcome)
			h.raw(`</section>`)
		}
		h.raw(`<form class="search" method="get" action="/">
  <input name="q" placeholder="Search games" value="`, esc(data.Query), `"/>`)
		if len(data.ActiveTopics) > 0 {
			h.raw(`<input type="hidden" name="topics" value="`, esc(strings.Join(data.ActiveTopics, ",")), `"/>`)
		}
		h.raw(`<button type="submit">Search</button>
</form>`)
		topicChips(h, data.Topics, data.ActiveTopics, "/")

		if len(data.Games) == 0 {
			h.raw(`<p class="empty">No games match.</p>`)
		}
		h.raw(`<section class="grid">`)
		for _, game := range data.Games {
			gameCard(h, game, data.Viewer.SignedIn, data.Lists)
		}
		h.raw(`</section>`)

		values := url.Values{}
		if data.Query != "" {
			values.Set("q", data.Query)
		}
		if len(data.ActiveTopics) > 0 {
			values.Set("topics", strings.Join(data.ActiveTopics, ","))
		}
		p := data.Pagination
		p.BasePath = queryURL("/", values)
		h.pagination(p)
	})
}

func gameCard(h *htmlWriter, game GameCard, signedIn bool, lists []ListCard) {
	class := "game"
	if game.Played {
		class += " played"
	}
	h.raw(`<article class="`, class, `" data-topic="`, esc(game.Topic), `">
  <header><h3>`)
	h.text(game.Title)
	h.raw(`</h3>`)
	if game.IsNew {
		h.raw(`<span class="tag new">New</span>`)
	}
	h.raw(`<span class="tag">`)
	h.text(game.Topic)
	h.raw(`</span></header>
  <a class="play" href="`, esc(game.Link), `" target="_blank" rel="noopener" data-play="`, esc(game.ID), `">Play</a>`)
	if signedIn && len(lists) > 0 {
		h.raw(`
  <select data-add-to-list="`, esc(game.ID), `"><option value="">Add to list</option>`)
		for _, list := range lists {
			h.raw(`<option value="`, esc(list.ID), `">`)
			h.text(list.Name)
			h.raw(`</option>`)
		}
		h.raw(`</select>`)
	}
	h.raw(`
</article>`)
}
