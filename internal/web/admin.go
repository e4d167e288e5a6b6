package web

import "github.com/a-h/templ"

const adminScript = `
const panel = document.getElementById("admin");
const show = (key) => {
  panel.querySelectorAll("[data-tab-panel]").forEach((el) => { el.hidden = el.dataset.tabPanel !== key; });
  panel.querySelectorAll("[data-tab]").forEach((el) => el.classList.toggle("active", el.dataset.tab === key));
  loaders[key]?.();
};
const selected = () => [...panel.querySelectorAll("input[data-game]:checked")].map((el) => el.value);
const guarded = async (message, fn) => {
  if (message && !confirm(message)) return;
  try { await fn(); } catch (err) { dles.toast(err.message); }
};
panel.querySelectorAll("[data-bulk]").forEach((button) => {
  button.onclick = () => {
    const action = button.dataset.bulk;
    const warn = action === "delete" ? "Delete the selected games? This cannot be undone." : "";
    guarded(warn, async () => {
      const res = await dles.api("POST", "/api/admin/games/bulk", { action, gameIds: selected() });
      dles.toast(res.count + " games updated");
      location.reload();
    });
  };
});
panel.querySelector("[data-scan]")?.addEventListener("click", () => guarded("", async () => {
  const res = await dles.api("POST", "/api/admin/games/check-embed");
  dles.toast(res.checked + " checked, " + res.blocked + " blocked, " + res.errors.length + " errors");
}));
const loaders = {
  submissions: async () => {
    const rows = await dles.api("GET", "/api/admin/submissions?status=PENDING");
    const list = panel.querySelector("[data-submissions]");
    list.replaceChildren(...rows.map((row) => {
      const li = document.createElement("li");
      li.textContent = row.title + " " + row.link + " (" + (row.user ? row.user.name : "unknown") + ") ";
      for (const status of ["APPROVED", "REJECTED"]) {
        const b = document.createElement("button");
        b.textContent = status === "APPROVED" ? "Approve" : "Reject";
        b.onclick = () => guarded("", async () => { await dles.api("PATCH", "/api/admin/submissions", { id: row.id, status }); loaders.submissions(); });
        li.append(b);
      }
      return li;
    }));
  },
  users: async () => {
    const rows = await dles.api("GET", "/api/users");
    const list = panel.querySelector("[data-users]");
    list.replaceChildren(...rows.map((user) => {
      const li = document.createElement("li");
      li.textContent = user.name + " <" + user.email + "> " + user.role + " ";
      const del = document.createElement("button");
      del.textContent = "Delete";
      del.className = "danger";
      del.onclick = () => guarded("Delete " + user.email + "?", async () => { await dles.api("DELETE", "/api/users?userId=" + encodeURIComponent(user.id)); loaders.users(); });
      li.append(del);
      return li;
    }));
  },
  presets: async () => {
    const rows = await dles.api("GET", "/api/admin/preset-lists");
    const list = panel.querySelector("[data-presets]");
    list.replaceChildren(...rows.map((preset) => {
      const li = document.createElement("li");
      li.textContent = preset.order + ". " + preset.name + " (" + preset.gameCount + ")" + (preset.isActive ? "" : " inactive") + " ";
      const del = document.createElement("button");
      del.textContent = "Delete";
      del.className = "danger";
      del.onclick = () => guarded("Delete preset " + preset.name + "?", async () => { await dles.api("DELETE", "/api/admin/preset-lists/" + preset.id); loaders.presets(); });
      li.append(del);
      return li;
    }));
  },
  settings: async () => {
    const cfg = await dles.api("GET", "/api/settings");
    const form = panel.querySelector("[data-settings]");
    for (const [key, value] of Object.entries(cfg)) {
      const input = form.elements[key];
      if (!input) continue;
      if (input.type === "checkbox") input.checked = !!value; else input.value = value ?? "";
    }
    form.onsubmit = (event) => {
      event.preventDefault();
      guarded("", async () => {
        const body = {};
        for (const input of form.elements) {
          if (!input.name) continue;
          body[input.name] = input.type === "checkbox" ? input.checked : input.type === "number" ? Number(input.value) : input.value;
        }
        await dles.api("PATCH", "/api/admin/settings", body);
        dles.toast("Settings saved");
      });
    };
  },
};
panel.querySelectorAll("[data-tab]").forEach((el) => { el.onclick = () => show(el.dataset.tab); });
const first = panel.querySelector("[data-tab]");
if (first) show(first.dataset.tab);
`

func Admin(data AdminData) templ.Component {
	return page("Admin", data.Viewer, adminScript, func(h *htmlWriter) {
		h.raw(`<section id="admin" class="panel">
  <nav class="tabs">`)
		for _, tab := range data.Tabs {
			h.raw(`<button type="button" data-tab="`, esc(tab.Key), `">`)
			h.text(tab.Label)
			h.raw(`</button>`)
		}
		h.raw(`</nav>`)
		for _, tab := range data.Tabs {
			h.raw(`
  <div data-tab-panel="`, esc(tab.Key), `" hidden>`)
			switch tab.Key {
			case "games":
				adminGames(h, data)
			case "submissions":
				h.raw(`<h2>Pending submissions (`, itoa(data.PendingSubmissions), `)</h2><ul data-submissions></ul>`)
			case "presets":
				h.raw(`<h2>Preset lists (`, itoa(data.PresetLists), `)</h2><ul data-presets></ul>`)
			case "users":
				h.raw(`<h2>Users (`, itoa(data.Users), `)</h2><ul data-users></ul>
<p><a href="/api/admin/export/users">Export users</a> <a href="/api/admin/export/games">Export games</a></p>`)
			case "settings":
				adminSettings(h)
			}
			h.raw(`</div>`)
		}
		h.raw(`
</section>`)
	})
}

func adminGames(h *htmlWriter, data AdminData) {
	h.raw(`<h2>Games (`, itoa(data.Pagination.Total), `)</h2>
<div class="actions">
  <button type="button" data-bulk="archive">Archive</button>
  <button type="button" data-bulk="unarchive">Unarchive</button>
  <button type="button" class="danger" data-bulk="delete">Delete</button>
  <button type="button" data-scan>Check embeds</button>
</div>
<table class="games">
  <thead><tr><th></th><th>Title</th><th>Topic</th><th>Plays</th><th>Embed</th></tr></thead>
  <tbody>`)
	for _, game := range data.Games {
		embed := "unknown"
		if game.EmbedSupported != nil {
			embed = "blocked"
			if *game.EmbedSupported {
				embed = "ok"
			}
		}
		h.raw(`<tr><td><input type="checkbox" data-game value="`, esc(game.ID), `"/></td><td><a href="`, esc(game.Link), `" target="_blank" rel="noopener">`)
		h.text(game.Title)
		h.raw(`</a></td><td>`)
		h.text(game.Topic)
		h.raw(`</td><td>`, itoa(game.PlayCount), `</td><td>`, embed, `</td></tr>`)
	}
	h.raw(`</tbody>
</table>`)
	h.pagination(data.Pagination)
}

func adminSettings(h *htmlWriter) {
	h.raw(`<h2>Settings</h2>
<form data-settings class="stack">
  <label><input type="checkbox" name="maintenanceMode"/> Maintenance mode</label>
  <label><input type="checkbox" name="enableCommunitySubmissions"/> Community submissions</label>
  <label><input type="checkbox" name="showWelcomeMessage"/> Show welcome message</label>
  <label>Welcome message <input name="welcomeMessage" maxlength="500"/></label>
  <label>New game days <input type="number" name="newGameDays" min="0" max="365"/></label>
  <label>Plays per streak day <input type="number" name="minPlayStreak" min="1" max="100"/></label>
  <label>Max custom lists <input type="number" name="maxCustomLists" min="0" max="100"/></label>
  <label>Default sort <select name="defaultSort"><option>title</option><option>topic</option><option>playCount</option><option>createdAt</option></select></label>
  <button type="submit">Save</button>
</form>`)
}
