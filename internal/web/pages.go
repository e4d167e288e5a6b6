package web

import (
	"sort"

	"github.com/a-h/templ"
)

const listsScript = `
document.getElementById("newList")?.addEventListener("submit", async (event) => {
  event.preventDefault();
  const form = event.target;
  try {
    await dles.api("POST", "/api/lists", { name: form.elements.name.value.trim(), color: form.elements.color.value });
    location.reload();
  } catch (err) {
    dles.toast(err.message);
  }
});
document.querySelectorAll("[data-delete-list]").forEach((button) => {
  button.addEventListener("click", async () => {
    if (!confirm("Delete this list?")) return;
    try {
      await dles.api("DELETE", "/api/lists/" + button.dataset.deleteList);
      location.reload();
    } catch (err) {
      dles.toast(err.message);
    }
  });
});
`

func Lists(data ListsData) templ.Component {
	return page("Lists", data.Viewer, listsScript, func(h *htmlWriter) {
		h.raw(`<section class="panel">
  <h2>Your lists</h2>
  <p>You can keep up to `, itoa(data.Limit), ` lists.</p>
  <form id="newList" class="inline-form">
    <input name="name" maxlength="100" placeholder="List name" required/>
    <input name="color" placeholder="Color" value="slate"/>
    <button type="submit">Create list</button>
  </form>`)
		if len(data.Lists) == 0 {
			h.raw(`<p class="empty">No lists yet.</p>`)
		}
		h.raw(`<ul class="lists">`)
		for _, list := range data.Lists {
			h.raw(`<li class="list color-`, esc(list.Color), `"><strong>`)
			h.text(list.Name)
			h.raw(`</strong> <span>`, itoa(list.GameCount), ` games</span> <button type="button" class="danger" data-delete-list="`, esc(list.ID), `">Delete</button></li>`)
		}
		h.raw(`</ul>
</section>`)

		if len(data.Presets) > 0 {
			h.raw(`<section class="panel"><h2>Collections</h2>`)
			for _, preset := range data.Presets {
				h.raw(`<details class="preset color-`, esc(preset.Color), `"><summary>`)
				h.text(preset.Icon + " " + preset.Name)
				h.raw(` (`, itoa(preset.GameCount), `)</summary><section class="grid">`)
				for _, game := range preset.Games {
					gameCard(h, game, false, nil)
				}
				h.raw(`</section></details>`)
			}
			h.raw(`</section>`)
		}
	})
}

const submitScript = `
document.getElementById("submitGame")?.addEventListener("submit", async (event) => {
  event.preventDefault();
  const form = event.target;
  const body = {
    title: form.elements.title.value.trim(),
    link: form.elements.link.value.trim(),
    topic: form.elements.topic.value,
    description: form.elements.description.value.trim(),
  };
  try {
    await dles.api("POST", "/api/submissions", body);
    form.reset();
    dles.toast("Thanks! Your submission is pending review.");
    loadMine();
  } catch (err) {
    dles.toast(err.message);
  }
});
async function loadMine() {
  const target = document.getElementById("mine");
  if (!target) return;
  const rows = await dles.api("GET", "/api/submissions/mine");
  target.replaceChildren(...rows.map((row) => {
    const li = document.createElement("li");
    li.textContent = row.title + " (" + row.status + ")";
    return li;
  }));
}
loadMine().catch(() => {});
`

func Submit(data SubmitData) templ.Component {
	return page("Submit a game", data.Viewer, submitScript, func(h *htmlWriter) {
		if !data.Enabled {
			h.raw(`<section class="panel"><h2>Submissions are closed</h2><p>Community submissions are currently disabled.</p></section>`)
			return
		}
		h.raw(`<section class="panel">
  <h2>Suggest a daily game</h2>
  <form id="submitGame" class="stack">
    <input name="title" maxlength="200" placeholder="Title" required/>
    <input name="link" type="url" placeholder="https://" required/>
    <select name="topic" required>`)
		topicOptions(h, data.Topics)
		h.raw(`</select>
    <textarea name="description" maxlength="500" placeholder="Why do you like it?"></textarea>
    <button type="submit">Submit</button>
  </form>
</section>
<section class="panel">
  <h2>Your submissions</h2>
  <ul id="mine"></ul>
</section>`)
	})
}

func Dashboard(data DashboardData) templ.Component {
	return page("Stats", data.Viewer, "", func(h *htmlWriter) {
		h.raw(`<section class="stats">`)
		stat(h, "Total plays", itoa(data.TotalPlays))
		stat(h, "Unique games", itoa(data.UniqueGamesPlayed))
		stat(h, "Completion", itoa(data.CompletionRate)+"%")
		stat(h, "Current streak", itoa(data.CurrentStreak)+" days")
		stat(h, "Longest streak", itoa(data.LongestStreak)+" days")
		stat(h, "Busiest day", data.BusiestDay)
		stat(h, "Favorite time", data.FavoriteTime)
		h.raw(`</section>
<section class="panel">
  <h2>Last year</h2>
  <div class="heatmap">`)
		days := data.Days
		if days == nil {
			for day := range data.Heatmap {
				days = append(days, day)
			}
			sort.Strings(days)
		}
		for _, day := range days {
			count := data.Heatmap[day]
			h.raw(`<span class="cell level-`, itoa(heatLevel(count)), `" title="`, esc(day), `: `, itoa(count), `"></span>`)
		}
		h.raw(`</div>
</section>`)
	})
}

func stat(h *htmlWriter, label, value string) {
	h.raw(`<div class="stat"><span class="label">`)
	h.text(label)
	h.raw(`</span><strong>`)
	h.text(value)
	h.raw(`</strong></div>`)
}

func heatLevel(count int) int {
	switch {
	case count <= 0:
		return 0
	case count < 3:
		return 1
	case count < 6:
		return 2
	case count < 10:
		return 3
	default:
		return 4
	}
}
