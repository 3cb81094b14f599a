package collector

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/goalnet/internal/agents"
	"github.com/talgya/goalnet/internal/tasks"
)

// ErrUnknownKey is returned by WriteCSV for keys a snapshot does not carry.
var ErrUnknownKey = errors.New("unknown snapshot key")

// ErrNoSnapshots is returned when exporting before anything was collected.
var ErrNoSnapshots = errors.New("no snapshots collected")

// CSV keys.
const (
	KeyWealth            = "wealth"
	KeyTasks             = "tasks"
	KeyNetwork           = "network"
	KeyTaskNetwork       = "task_network"
	KeyWillingnessToHelp = "willingness_to_help"
)

// WriteJSON writes every snapshot as one JSON array ordered by clock.
func (c *Collector) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	return enc.Encode(c.snapshots)
}

// WriteJSONFile writes the time series to path, zstd-compressed when the
// path ends in ".zst".
func (c *Collector) WriteJSONFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := c.writeEncoded(f, strings.HasSuffix(path, ".zst")); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

func (c *Collector) writeEncoded(w io.Writer, compress bool) error {
	bw := bufio.NewWriter(w)
	if !compress {
		if err := c.WriteJSON(bw); err != nil {
			return err
		}
		return bw.Flush()
	}

	enc, err := zstd.NewWriter(bw, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if err := c.WriteJSON(enc); err != nil {
		enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadJSONFile loads a time series written by WriteJSONFile.
func ReadJSONFile(path string) ([]*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		r = dec
	}

	var out []*Snapshot
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return out, nil
}

// ── GraphML ───────────────────────────────────────────────────────────────

type graphML struct {
	XMLName xml.Name     `xml:"graphml"`
	XMLNS   string       `xml:"xmlns,attr"`
	Keys    []graphMLKey `xml:"key"`
	Graph   graphMLGraph `xml:"graph"`
}

type graphMLKey struct {
	ID       string `xml:"id,attr"`
	For      string `xml:"for,attr"`
	AttrName string `xml:"attr.name,attr"`
	AttrType string `xml:"attr.type,attr"`
}

type graphMLGraph struct {
	EdgeDefault string        `xml:"edgedefault,attr"`
	Nodes       []graphMLNode `xml:"node"`
	Edges       []graphMLEdge `xml:"edge"`
}

type graphMLNode struct {
	ID string `xml:"id,attr"`
}

type graphMLEdge struct {
	Source string        `xml:"source,attr"`
	Target string        `xml:"target,attr"`
	Data   []graphMLData `xml:"data"`
}

type graphMLData struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

// WriteGraphML writes the most recent task network as a directed GraphML graph.
func (c *Collector) WriteGraphML(w io.Writer) error {
	s := c.Latest()
	if s == nil {
		return ErrNoSnapshots
	}

	doc := graphML{
		XMLNS: "http://graphml.graphdrawing.org/xmlns",
		Keys:  []graphMLKey{{ID: "weight", For: "edge", AttrName: "weight", AttrType: "int"}},
		Graph: graphMLGraph{EdgeDefault: "directed"},
	}
	for _, id := range s.Nodes {
		doc.Graph.Nodes = append(doc.Graph.Nodes, graphMLNode{ID: idString(id)})
	}
	for _, l := range s.TaskNetwork {
		doc.Graph.Edges = append(doc.Graph.Edges, graphMLEdge{
			Source: idString(l.Source),
			Target: idString(l.Target),
			Data:   []graphMLData{{Key: "weight", Value: strconv.Itoa(l.Weight)}},
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Flush()
}

// ── CSV ───────────────────────────────────────────────────────────────────

// WriteCSV flattens one top-level key across every snapshot: one row per
// clock, one column per entry of that key. Missing cells are left empty.
func (c *Collector) WriteCSV(w io.Writer, key string) error {
	rows := make([]map[string]string, len(c.snapshots))
	var columns []string
	seen := make(map[string]bool)

	for i, s := range c.snapshots {
		cols, err := flatten(s, key)
		if err != nil {
			return err
		}
		rows[i] = make(map[string]string, len(cols))
		for _, kv := range cols {
			rows[i][kv[0]] = kv[1]
			if !seen[kv[0]] {
				seen[kv[0]] = true
				columns = append(columns, kv[0])
			}
		}
	}
	if len(c.snapshots) == 0 {
		if _, err := flatten(&Snapshot{}, key); err != nil {
			return err
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"timestamp"}, columns...)); err != nil {
		return err
	}
	for i, s := range c.snapshots {
		record := make([]string, 0, len(columns)+1)
		record = append(record, formatFloat(s.Clock))
		for _, col := range columns {
			record = append(record, rows[i][col])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// flatten returns ordered (column, value) pairs for key.
func flatten(s *Snapshot, key string) ([][2]string, error) {
	var out [][2]string
	switch key {
	case KeyWealth:
		for _, id := range sortedAgentKeys(s.Wealth) {
			out = append(out, [2]string{idString(id), formatFloat(s.Wealth[id])})
		}
	case KeyTasks:
		ids := make([]tasks.TaskID, 0, len(s.Tasks))
		for id := range s.Tasks {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			state := "active"
			if s.Tasks[id].Completed {
				state = "completed"
			}
			out = append(out, [2]string{strconv.FormatUint(uint64(id), 10), state})
		}
	case KeyNetwork:
		for _, e := range s.Network {
			out = append(out, [2]string{idString(e.A) + "-" + idString(e.B), "1"})
		}
	case KeyTaskNetwork:
		for _, l := range s.TaskNetwork {
			out = append(out, [2]string{idString(l.Source) + "->" + idString(l.Target), strconv.Itoa(l.Weight)})
		}
	case KeyWillingnessToHelp:
		for _, a := range sortedAgentKeys(s.WillingnessToHelp) {
			row := s.WillingnessToHelp[a]
			for _, b := range sortedAgentKeys(row) {
				out = append(out, [2]string{idString(a) + "->" + idString(b), formatFloat(row[b])})
			}
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return out, nil
}

func sortedAgentKeys[V any](m map[agents.AgentID]V) []agents.AgentID {
	keys := make([]agents.AgentID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func idString(id agents.AgentID) string {
	return strconv.FormatUint(uint64(id), 10)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
