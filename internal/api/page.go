package api

// indexPage is the live task-network view. It draws nodes on the first frame,
// adds links as they arrive, and asks for the next frame once the force
// layout settles.
const indexPage = `<!DOCTYPE html>
<meta charset="utf-8">
<title>goalnet</title>
<style>
  body { font-family: sans-serif; margin: 1em; }
  .link { stroke: #999; stroke-opacity: 0.6; }
  .node { fill: #3b6ea5; }
  #clock { color: #555; }
</style>
<body>
<div>clock <span id="clock">0</span></div>
<script src="https://d3js.org/d3.v3.min.js"></script>
<script>
  var width = 800, height = 800;
  var nodes = [], links = [], index = {};
  var svg = d3.select("body").append("svg").attr("width", width).attr("height", height);
  var force = d3.layout.force().nodes(nodes).links(links)
      .charge(-60).linkDistance(40).size([width, height]).on("tick", draw);

  function restart() {
    var l = svg.selectAll(".link").data(links);
    l.enter().insert("line", ".node").attr("class", "link");
    var n = svg.selectAll(".node").data(nodes, function(d) { return d.id; });
    n.enter().append("circle").attr("class", "node").attr("r", 4).call(force.drag);
    n.exit().remove();
    force.start();
  }

  function draw() {
    svg.selectAll(".link")
      .attr("x1", function(d) { return d.source.x; }).attr("y1", function(d) { return d.source.y; })
      .attr("x2", function(d) { return d.target.x; }).attr("y2", function(d) { return d.target.y; });
    svg.selectAll(".node")
      .attr("cx", function(d) { return d.x; }).attr("cy", function(d) { return d.y; });
  }

  var ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
  var done = false;
  ws.onmessage = function(msg) {
    var data = JSON.parse(msg.data);
    if (data.error) { console.log(data.error); return; }
    d3.select("#clock").text(data.clock.toFixed(2));
    if (data.nodes) {
      nodes.length = 0; links.length = 0; index = {};
      svg.selectAll("*").remove();
      data.nodes.forEach(function(n) { index[n.id] = nodes.length; nodes.push({id: n.id}); });
    }
    data.links.forEach(function(l) {
      links.push({source: nodes[index[l.source]], target: nodes[index[l.target]]});
    });
    done = !!data.done;
    restart();
  };
  setInterval(function() {
    if (!done && ws.readyState === 1 && force.alpha() < 0.05) { ws.send("Ready!"); }
  }, 1000);
</script>
`
