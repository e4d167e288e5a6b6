package web

import "github.com/a-h/templ"

const raceNewScript = `
document.getElementById("newRace")?.addEventListener("submit", async (event) => {
  event.preventDefault();
  const form = event.target;
  const gameIds = [...form.querySelectorAll("input[name=game]:checked")].map((input) => input.value);
  const body = { name: form.elements.name.value.trim(), gameIds };
  if (form.elements.guestName) body.guestName = form.elements.guestName.value.trim();
  try {
    const data = await dles.api("POST", "/api/race", body);
    if (data.guestToken) sessionStorage.setItem("race:" + data.race.id, data.guestToken);
    location.href = "/race/" + data.race.id;
  } catch (err) {
    dles.toast(err.message);
  }
});
`

func RaceNew(data RaceNewData) templ.Component {
	return page("New race", data.Viewer, raceNewScript, func(h *htmlWriter) {
		h.raw(`<section class="panel">
  <h2>Start a race</h2>
  <form id="newRace" class="stack">
    <input name="name" maxlength="50" placeholder="Race name" required/>`)
		if !data.Viewer.SignedIn {
			h.raw(`
    <input name="guestName" maxlength="30" placeholder="Your name" required/>`)
		}
		h.raw(`
    <fieldset class="picker"><legend>Games, in order</legend>`)
		for _, game := range data.Games {
			h.raw(`<label><input type="checkbox" name="game" value="`, esc(game.ID), `"/> `)
			h.text(game.Title)
			h.raw(` <span class="tag">`)
			h.text(game.Topic)
			h.raw(`</span></label>`)
		}
		h.raw(`</fieldset>
    <button type="submit">Create race</button>
  </form>
</section>`)
	})
}

// raceViewScript renders the race from websocket snapshots and falls back to
// polling the snapshot endpoint while the socket is down.
const raceViewScript = `
const root = document.getElementById("race");
const raceId = root.dataset.race;
const token = sessionStorage.getItem("race:" + raceId);
const headers = token ? { "X-Race-Guest-Token": token } : {};
let me = null;
let poller = null;

function render(race) {
  root.querySelector("[data-status]").textContent = race.status;
  const board = root.querySelector("[data-board]");
  board.replaceChildren(...race.participants.map((p) => {
    const row = document.createElement("li");
    const done = p.completions.length;
    row.textContent = p.name + ": " + done + "/" + race.raceGames.length + (p.finished ? " finished" : "");
    if (race.winnerId === p.id) row.classList.add("winner");
    return row;
  }));
  const games = root.querySelector("[data-games]");
  const mine = race.participants.find((p) => p.id === me);
  const completed = new Set((mine ? mine.completions : []).map((c) => c.raceGameId));
  games.replaceChildren(...race.raceGames.map((g, i) => {
    const item = document.createElement("li");
    const unlocked = i === 0 || completed.has(race.raceGames[i - 1].id);
    item.className = completed.has(g.id) ? "done" : unlocked ? "open" : "locked";
    item.textContent = (i + 1) + ". " + g.title + " ";
    if (race.status === "active" && mine && unlocked && !completed.has(g.id)) {
      const play = document.createElement("a");
      play.href = g.link; play.target = "_blank"; play.rel = "noopener"; play.textContent = "Play";
      const done = document.createElement("button");
      done.textContent = "Done";
      done.onclick = () => complete(g.id, false);
      const skip = document.createElement("button");
      skip.textContent = "Skip";
      skip.onclick = () => complete(g.id, true);
      item.append(play, done, skip);
    }
    return item;
  }));
  root.querySelector("[data-start]").hidden = !(race.status === "waiting" && mine);
  root.querySelector("[data-join]").hidden = race.status !== "waiting" || !!mine;
}

async function refresh() {
  const data = await dles.api("GET", "/api/race/" + raceId, null, headers);
  me = data.participantId || me;
  render(data.race);
}

async function complete(raceGameId, skipped) {
  try {
    const data = await dles.api("POST", "/api/race/" + raceId + "/complete-game", { raceGameId, skipped }, headers);
    render(data.race);
  } catch (err) {
    dles.toast(err.message);
    refresh();
  }
}

root.querySelector("[data-start]").onclick = async () => {
  try { render((await dles.api("POST", "/api/race/" + raceId + "/start", {}, headers)).race); }
  catch (err) { dles.toast(err.message); }
};
root.querySelector("[data-join]").onclick = async () => {
  const guestName = dles.signedIn ? "" : prompt("Your name");
  try {
    const data = await dles.api("POST", "/api/race/" + raceId + "/join", guestName ? { guestName } : {}, headers);
    if (data.guestToken) { sessionStorage.setItem("race:" + raceId, data.guestToken); headers["X-Race-Guest-Token"] = data.guestToken; }
    me = data.participantId;
    render(data.race);
  } catch (err) { dles.toast(err.message); }
};

function connect() {
  const proto = location.protocol === "https:" ? "wss://" : "ws://";
  const socket = new WebSocket(proto + location.host + "/ws/race/" + raceId);
  socket.onopen = () => { clearInterval(poller); poller = null; };
  socket.onmessage = (msg) => {
    const data = JSON.parse(msg.data);
    if (data.type === "race_deleted") { location.href = "/race/new"; return; }
    if (data.race) render(data.race);
  };
  socket.onclose = () => {
    if (!poller) poller = setInterval(() => refresh().catch(() => {}), 3000);
    setTimeout(connect, 5000);
  };
}

refresh().then(connect).catch((err) => dles.toast(err.message));
`

func RaceView(data RaceViewData) templ.Component {
	return page(data.Name, data.Viewer, raceViewScript, func(h *htmlWriter) {
		h.raw(`<section id="race" class="panel" data-race="`, esc(data.RaceID), `">
  <h2>`)
		h.text(data.Name)
		h.raw(` <span class="tag" data-status>`)
		h.text(data.Status)
		h.raw(`</span></h2>
  <div class="actions">
    <button type="button" data-start hidden>Start race</button>
    <button type="button" data-join hidden>Join race</button>
  </div>
  <div class="columns">
    <ol class="race-games" data-games></ol>
    <ul class="board" data-board></ul>
  </div>
</section>`)
	})
}

const raceStatsScript = `
dles.api("GET", "/api/race/stats").then((data) => {
  document.querySelector("[data-total]").textContent = data.totalRaces;
  document.querySelector("[data-wins]").textContent = data.wins;
  document.querySelector("[data-average]").textContent = data.averageFinishSeconds + "s";
  document.querySelector("[data-races]").replaceChildren(...data.races.map((race) => {
    const li = document.createElement("li");
    li.textContent = race.name + ": " + (race.won ? "won" : race.finished ? "finished" : "did not finish");
    return li;
  }));
}).catch((err) => dles.toast(err.message));
`

func RaceStats(viewer Viewer) templ.Component {
	return page("Race history", viewer, raceStatsScript, func(h *htmlWriter) {
		h.raw(`<section class="stats">`)
		h.raw(`<div class="stat"><span class="label">Races</span><strong data-total>0</strong></div>`)
		h.raw(`<div class="stat"><span class="label">Wins</span><strong data-wins>0</strong></div>`)
		h.raw(`<div class="stat"><span class="label">Average finish</span><strong data-average>-</strong></div>`)
		h.raw(`</section>
<section class="panel"><h2>Completed races</h2><ul data-races></ul></section>`)
	})
}
