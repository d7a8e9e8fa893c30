package content

// apiObjectName is the global object the bridge exposes to in-game code.
// Its presence in input content means a bridge is already installed.
const apiObjectName = "window.gameAPI"

// bridgeScript returns the communication bootstrap injected before the
// closing body tag. It:
//   - sends postMessage events to the parent context
//   - announces GAME_READY after load, with a grace delay for late-binding
//     game scripts, and retries once if no PARENT_READY handshake arrives
//   - exposes window.gameAPI for games that integrate explicitly
//   - auto-fires GAME_STARTED on first pointer or key interaction
//   - suppresses context menu and text selection
//   - re-applies full-size layout on resize
func bridgeScript() string {
	return `<script id="` + bridgeScriptID + `">
(function () {
  var hostReady = false;
  var retried = false;

  function send(type, payload) {
    try {
      if (window.parent && window.parent !== window) {
        window.parent.postMessage({ type: type, payload: payload || {} }, '*');
      }
    } catch (err) {
      console.error('bridge: send failed', err);
    }
  }

  function fillViewport() {
    var targets = [document.documentElement, document.body];
    for (var i = 0; i < targets.length; i++) {
      var el = targets[i];
      if (!el) continue;
      el.style.width = '100%';
      el.style.height = '100%';
      el.style.margin = '0';
      el.style.overflow = 'hidden';
    }
  }

  var started = false;
  var score = 0;
  var startedAt = Date.now();

  function startGame() {
    if (started) return;
    started = true;
    startedAt = Date.now();
    send('GAME_STARTED', { timestamp: startedAt });
  }

  function updateScore(value) {
    score = value;
    send('SCORE_UPDATE', { score: score });
  }

  function completeGame(finalScore) {
    var timeSpent = Math.floor((Date.now() - startedAt) / 1000);
    send('GAME_COMPLETED', {
      score: finalScore == null ? score : finalScore,
      timeSpent: timeSpent,
      progress: 100
    });
  }

  function announceReady() {
    send('GAME_READY', { timestamp: Date.now() });
  }

  window.addEventListener('message', function (event) {
    if (event.data && event.data.type === 'PARENT_READY') {
      hostReady = true;
    }
  });

  window.addEventListener('load', function () {
    fillViewport();
    setTimeout(function () {
      announceReady();
      setTimeout(function () {
        if (!hostReady && !retried) {
          retried = true;
          announceReady();
        }
      }, 1000);
    }, 1000);
  });

  window.addEventListener('resize', fillViewport);

  document.addEventListener('pointerdown', function () { startGame(); });
  document.addEventListener('keydown', function () { startGame(); });
  document.addEventListener('contextmenu', function (e) { e.preventDefault(); });
  document.addEventListener('selectstart', function (e) { e.preventDefault(); });

  ` + apiObjectName + ` = {
    start: startGame,
    updateScore: updateScore,
    complete: completeGame,
    sendMessage: send
  };
})();
</script>`
}
