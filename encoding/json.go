package encoding

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/loro-dev/loro-go/internal/arena"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/oplog"
)

// jsonSchemaVersion versions the shape of jsonDoc independently of the
// binary format's version byte.
const jsonSchemaVersion = 1

// JSONDoc is the human-readable form of a run of changes. Marshal/Unmarshal go through this type directly so callers who
// want to inspect or hand-edit an export (e.g. before redacting) can do so
// with the standard encoding/json package rather than only through this
// package's helpers.
type JSONDoc struct {
	SchemaVersion int          `json:"schema_version"`
	StartVersion  []jsonID     `json:"start_version"`
	Peers         []string     `json:"peers"`
	Changes       []jsonChange `json:"changes"`
}

type jsonID struct {
	Peer    uint64 `json:"peer,string"`
	Counter int32  `json:"counter"`
}

func toJSONID(i id.ID) jsonID { return jsonID{Peer: uint64(i.Peer), Counter: int32(i.Counter)} }
func (j jsonID) toID() id.ID  { return id.ID{Peer: id.Peer(j.Peer), Counter: id.Counter(j.Counter)} }

type jsonChange struct {
	ID        jsonID   `json:"id"`
	Timestamp int64    `json:"timestamp"`
	Deps      []jsonID `json:"deps,omitempty"`
	Lamport   uint32   `json:"lamport"`
	Msg       string   `json:"msg,omitempty"`
	Ops       []jsonOp `json:"ops"`
}

// jsonOp is a deliberately flat, sparse shape covering every OpContent kind:
// only the fields a given kind uses are populated, the rest are omitted.
type jsonOp struct {
	Kind      string `json:"kind"`
	Container string `json:"container"`
	Counter   int32  `json:"counter"`

	Text        string     `json:"text,omitempty"`
	Target      *jsonID    `json:"target,omitempty"`
	TargetRef   string     `json:"target_ref,omitempty"`
	Len         int        `json:"len,omitempty"`
	Key         string     `json:"key,omitempty"`
	Value       *jsonValue `json:"value,omitempty"`
	Expand      string     `json:"expand,omitempty"`
	Anchor      *jsonID    `json:"anchor,omitempty"`
	StartID     *jsonID    `json:"start_id,omitempty"`
	OriginLeft  *jsonID    `json:"origin_left,omitempty"`
	OriginRight *jsonID    `json:"origin_right,omitempty"`
	Element     *jsonID    `json:"element,omitempty"`
	Parent      string     `json:"parent,omitempty"`
	NewParent   string     `json:"new_parent,omitempty"`
	FracIndex   string     `json:"frac_index,omitempty"`
	Delta       float64    `json:"delta,omitempty"`
	RawKind     uint32     `json:"raw_kind,omitempty"`
	Payload     []byte     `json:"payload,omitempty"`

	Redacted bool `json:"redacted,omitempty"`
}

type jsonValue struct {
	Kind      string `json:"kind"`
	Bool      bool   `json:"bool,omitempty"`
	Int       int64  `json:"int,omitempty,string"`
	Float     float64 `json:"float,omitempty"`
	Str       string `json:"str,omitempty"`
	Bin       []byte `json:"bin,omitempty"`
	Container string `json:"container,omitempty"`
}

func kindName(k arena.ContainerKind) string {
	switch k {
	case arena.KindText:
		return "text"
	case arena.KindList:
		return "list"
	case arena.KindMovableList:
		return "movable_list"
	case arena.KindMap:
		return "map"
	case arena.KindTree:
		return "tree"
	case arena.KindCounter:
		return "counter"
	default:
		return "unknown"
	}
}

func parseKindName(s string) (arena.ContainerKind, error) {
	switch s {
	case "text":
		return arena.KindText, nil
	case "list":
		return arena.KindList, nil
	case "movable_list":
		return arena.KindMovableList, nil
	case "map":
		return arena.KindMap, nil
	case "tree":
		return arena.KindTree, nil
	case "counter":
		return arena.KindCounter, nil
	case "unknown":
		return arena.KindUnknown, nil
	default:
		return 0, fmt.Errorf("encoding: unknown container kind %q", s)
	}
}

// containerRef renders idx as "root:<kind>:<name>" or "id:<kind>:<peer>:<counter>",
// a textual analogue of the binary format's portable ContainerID.
func containerRef(ar *arena.Arena, idx arena.Idx) string {
	cid := ar.IdxToCID(idx)
	if cid.IsRoot {
		return fmt.Sprintf("root:%s:%s", kindName(cid.Kind), cid.Name)
	}
	return fmt.Sprintf("id:%s:%d:%d", kindName(cid.Kind), uint64(cid.Create.Peer), int32(cid.Create.Counter))
}

func parseContainerRef(ar *arena.Arena, s string) (arena.Idx, error) {
	parts := strings.SplitN(s, ":", 4)
	if len(parts) < 3 {
		return 0, fmt.Errorf("encoding: malformed container ref %q", s)
	}
	kind, err := parseKindName(parts[1])
	if err != nil {
		return 0, err
	}
	switch parts[0] {
	case "root":
		return ar.RegisterContainer(arena.RootContainerID(parts[2], kind)), nil
	case "id":
		if len(parts) != 4 {
			return 0, fmt.Errorf("encoding: malformed container ref %q", s)
		}
		peer, err := strconv.ParseUint(parts[2], 10, 64)
		if err != nil {
			return 0, err
		}
		counter, err := strconv.ParseInt(parts[3], 10, 32)
		if err != nil {
			return 0, err
		}
		return ar.RegisterContainer(arena.NormalContainerID(id.ID{Peer: id.Peer(peer), Counter: id.Counter(counter)}, kind)), nil
	default:
		return 0, fmt.Errorf("encoding: malformed container ref %q", s)
	}
}

func valueToJSON(ar *arena.Arena, v arena.Value) jsonValue {
	switch v.Kind {
	case arena.ValueBool:
		return jsonValue{Kind: "bool", Bool: v.Bool}
	case arena.ValueInt:
		return jsonValue{Kind: "int", Int: v.I64}
	case arena.ValueFloat:
		return jsonValue{Kind: "float", Float: v.F64}
	case arena.ValueString:
		return jsonValue{Kind: "str", Str: v.Str}
	case arena.ValueBytes:
		return jsonValue{Kind: "bytes", Bin: v.Bin}
	case arena.ValueContainer:
		return jsonValue{Kind: "container", Container: containerRef(ar, mustIdx(ar, v.ContainerID))}
	default:
		return jsonValue{Kind: "null"}
	}
}

// mustIdx resolves a ContainerID already known to ar (it was registered
// when the value was created) back to its arena index.
func mustIdx(ar *arena.Arena, cid arena.ContainerID) arena.Idx {
	idx, _ := ar.CIDToIdx(cid)
	return idx
}

func valueFromJSON(ar *arena.Arena, j *jsonValue) (arena.Value, error) {
	if j == nil {
		return arena.Value{Kind: arena.ValueNull}, nil
	}
	switch j.Kind {
	case "bool":
		return arena.Value{Kind: arena.ValueBool, Bool: j.Bool}, nil
	case "int":
		return arena.Value{Kind: arena.ValueInt, I64: j.Int}, nil
	case "float":
		return arena.Value{Kind: arena.ValueFloat, F64: j.Float}, nil
	case "str":
		return arena.Value{Kind: arena.ValueString, Str: j.Str}, nil
	case "bytes":
		return arena.Value{Kind: arena.ValueBytes, Bin: j.Bin}, nil
	case "container":
		idx, err := parseContainerRef(ar, j.Container)
		if err != nil {
			return arena.Value{}, err
		}
		return arena.Value{Kind: arena.ValueContainer, ContainerID: ar.IdxToCID(idx)}, nil
	case "", "null":
		return arena.Value{Kind: arena.ValueNull}, nil
	default:
		return arena.Value{}, fmt.Errorf("encoding: unknown value kind %q", j.Kind)
	}
}

func expandName(e oplog.MarkExpand) string {
	switch e {
	case oplog.ExpandBefore:
		return "before"
	case oplog.ExpandAfter:
		return "after"
	case oplog.ExpandBoth:
		return "both"
	default:
		return "none"
	}
}

func parseExpandName(s string) oplog.MarkExpand {
	switch s {
	case "before":
		return oplog.ExpandBefore
	case "after":
		return oplog.ExpandAfter
	case "both":
		return oplog.ExpandBoth
	default:
		return oplog.ExpandNone
	}
}

func optID(i id.ID, has bool) *jsonID {
	if !has {
		return nil
	}
	j := toJSONID(i)
	return &j
}

func getID(j *jsonID) (id.ID, bool) {
	if j == nil {
		return id.ID{}, false
	}
	return j.toID(), true
}

func opContentToJSON(ar *arena.Arena, c oplog.OpContent) jsonOp {
	switch v := c.(type) {
	case oplog.TextInsert:
		return jsonOp{Kind: "text_insert", Text: ar.SliceTextString(v.Text), OriginLeft: optID(v.OriginLeft, v.HasLeft), OriginRight: optID(v.OriginRight, v.HasRight)}
	case oplog.TextDelete:
		t := toJSONID(v.Target)
		return jsonOp{Kind: "text_delete", Target: &t, Len: v.Len}
	case oplog.TextMark:
		val := valueToJSON(ar, v.Value)
		return jsonOp{Kind: "text_mark", Key: v.Key, Value: &val, Expand: expandName(v.Expand), Anchor: optID(v.Anchor, v.HasAnchor)}
	case oplog.TextMarkEnd:
		s := toJSONID(v.StartID)
		return jsonOp{Kind: "text_mark_end", Key: v.Key, StartID: &s, Anchor: optID(v.Anchor, v.HasAnchor)}
	case oplog.ListInsert:
		val := valueToJSON(ar, v.Value)
		return jsonOp{Kind: "list_insert", Value: &val, OriginLeft: optID(v.OriginLeft, v.HasLeft), OriginRight: optID(v.OriginRight, v.HasRight)}
	case oplog.ListDelete:
		t := toJSONID(v.Target)
		return jsonOp{Kind: "list_delete", Target: &t, Len: v.Len}
	case oplog.MovableListInsert:
		val := valueToJSON(ar, v.Value)
		return jsonOp{Kind: "movable_list_insert", Value: &val, OriginLeft: optID(v.OriginLeft, v.HasLeft), OriginRight: optID(v.OriginRight, v.HasRight)}
	case oplog.MovableListDelete:
		t := toJSONID(v.Target)
		return jsonOp{Kind: "movable_list_delete", Target: &t}
	case oplog.MovableListMove:
		e := toJSONID(v.Element)
		return jsonOp{Kind: "movable_list_move", Element: &e, OriginLeft: optID(v.OriginLeft, v.HasLeft), OriginRight: optID(v.OriginRight, v.HasRight)}
	case oplog.MovableListSet:
		e := toJSONID(v.Element)
		val := valueToJSON(ar, v.Value)
		return jsonOp{Kind: "movable_list_set", Element: &e, Value: &val}
	case oplog.MapSet:
		val := valueToJSON(ar, v.Value)
		return jsonOp{Kind: "map_set", Key: v.Key, Value: &val}
	case oplog.TreeCreate:
		var parent string
		if v.HasParent {
			parent = containerRef(ar, v.Parent)
		}
		return jsonOp{Kind: "tree_create", Parent: parent, FracIndex: v.FractionalIndex}
	case oplog.TreeMove:
		var newParent string
		if v.HasNewParent {
			newParent = containerRef(ar, v.NewParent)
		}
		return jsonOp{Kind: "tree_move", TargetRef: containerRef(ar, v.Target), NewParent: newParent, FracIndex: v.FractionalIndex}
	case oplog.TreeDelete:
		return jsonOp{Kind: "tree_delete", TargetRef: containerRef(ar, v.Target)}
	case oplog.CounterIncrement:
		return jsonOp{Kind: "counter_increment", Delta: v.Delta}
	case oplog.Unknown:
		return jsonOp{Kind: "unknown", RawKind: v.RawKind, Payload: v.Payload}
	default:
		return jsonOp{Kind: "unknown"}
	}
}

func opContentFromJSON(ar *arena.Arena, j jsonOp) (oplog.OpContent, error) {
	switch j.Kind {
	case "text_insert":
		left, hasLeft := getID(j.OriginLeft)
		right, hasRight := getID(j.OriginRight)
		return oplog.TextInsert{Text: ar.InternText([]byte(j.Text)), OriginLeft: left, HasLeft: hasLeft, OriginRight: right, HasRight: hasRight}, nil
	case "text_delete":
		target, _ := getID(j.Target)
		return oplog.TextDelete{Target: target, Len: j.Len}, nil
	case "text_mark":
		val, err := valueFromJSON(ar, j.Value)
		if err != nil {
			return nil, err
		}
		anchor, hasAnchor := getID(j.Anchor)
		return oplog.TextMark{Key: j.Key, Value: val, Expand: parseExpandName(j.Expand), Anchor: anchor, HasAnchor: hasAnchor}, nil
	case "text_mark_end":
		start, _ := getID(j.StartID)
		anchor, hasAnchor := getID(j.Anchor)
		return oplog.TextMarkEnd{Key: j.Key, StartID: start, Anchor: anchor, HasAnchor: hasAnchor}, nil
	case "list_insert":
		val, err := valueFromJSON(ar, j.Value)
		if err != nil {
			return nil, err
		}
		left, hasLeft := getID(j.OriginLeft)
		right, hasRight := getID(j.OriginRight)
		return oplog.ListInsert{Value: val, OriginLeft: left, HasLeft: hasLeft, OriginRight: right, HasRight: hasRight}, nil
	case "list_delete":
		target, _ := getID(j.Target)
		return oplog.ListDelete{Target: target, Len: j.Len}, nil
	case "movable_list_insert":
		val, err := valueFromJSON(ar, j.Value)
		if err != nil {
			return nil, err
		}
		left, hasLeft := getID(j.OriginLeft)
		right, hasRight := getID(j.OriginRight)
		return oplog.MovableListInsert{Value: val, OriginLeft: left, HasLeft: hasLeft, OriginRight: right, HasRight: hasRight}, nil
	case "movable_list_delete":
		target, _ := getID(j.Target)
		return oplog.MovableListDelete{Target: target}, nil
	case "movable_list_move":
		el, _ := getID(j.Element)
		left, hasLeft := getID(j.OriginLeft)
		right, hasRight := getID(j.OriginRight)
		return oplog.MovableListMove{Element: el, OriginLeft: left, HasLeft: hasLeft, OriginRight: right, HasRight: hasRight}, nil
	case "movable_list_set":
		el, _ := getID(j.Element)
		val, err := valueFromJSON(ar, j.Value)
		if err != nil {
			return nil, err
		}
		return oplog.MovableListSet{Element: el, Value: val}, nil
	case "map_set":
		val, err := valueFromJSON(ar, j.Value)
		if err != nil {
			return nil, err
		}
		return oplog.MapSet{Key: j.Key, Value: val}, nil
	case "tree_create":
		var parent arena.Idx
		hasParent := j.Parent != ""
		if hasParent {
			p, err := parseContainerRef(ar, j.Parent)
			if err != nil {
				return nil, err
			}
			parent = p
		}
		return oplog.TreeCreate{Parent: parent, HasParent: hasParent, FractionalIndex: j.FracIndex}, nil
	case "tree_move":
		target, err := parseContainerRef(ar, j.TargetRef)
		if err != nil {
			return nil, err
		}
		var newParent arena.Idx
		hasNewParent := j.NewParent != ""
		if hasNewParent {
			np, err := parseContainerRef(ar, j.NewParent)
			if err != nil {
				return nil, err
			}
			newParent = np
		}
		return oplog.TreeMove{Target: target, NewParent: newParent, HasNewParent: hasNewParent, FractionalIndex: j.FracIndex}, nil
	case "tree_delete":
		target, err := parseContainerRef(ar, j.TargetRef)
		if err != nil {
			return nil, err
		}
		return oplog.TreeDelete{Target: target}, nil
	case "counter_increment":
		return oplog.CounterIncrement{Delta: j.Delta}, nil
	case "unknown", "":
		return oplog.Unknown{RawKind: j.RawKind, Payload: j.Payload}, nil
	default:
		return nil, fmt.Errorf("encoding: unknown JSON op kind %q", j.Kind)
	}
}

func changeToJSON(ar *arena.Arena, c *oplog.Change) jsonChange {
	deps := make([]jsonID, len(c.Deps))
	for i, d := range c.Deps {
		deps[i] = toJSONID(d)
	}
	ops := make([]jsonOp, len(c.Ops))
	for i, op := range c.Ops {
		oj := opContentToJSON(ar, op.Content)
		oj.Container = containerRef(ar, op.Container)
		oj.Counter = int32(op.Counter)
		ops[i] = oj
	}
	return jsonChange{
		ID:        toJSONID(c.IDStart()),
		Timestamp: c.Timestamp,
		Deps:      deps,
		Lamport:   uint32(c.Lamport),
		Msg:       c.CommitMsg,
		Ops:       ops,
	}
}

func changeFromJSON(ar *arena.Arena, cj jsonChange) (*oplog.Change, error) {
	deps := make(id.Frontiers, len(cj.Deps))
	for i, d := range cj.Deps {
		deps[i] = d.toID()
	}
	ops := make([]oplog.Op, len(cj.Ops))
	for i, oj := range cj.Ops {
		containerIdx, err := parseContainerRef(ar, oj.Container)
		if err != nil {
			return nil, fmt.Errorf("encoding: json op %d: %w", i, err)
		}
		content, err := opContentFromJSON(ar, oj)
		if err != nil {
			return nil, fmt.Errorf("encoding: json op %d: %w", i, err)
		}
		ops[i] = oplog.Op{Container: containerIdx, Counter: id.Counter(oj.Counter), Content: content}
	}
	return &oplog.Change{
		Peer:      id.Peer(cj.ID.Peer),
		Start:     id.Counter(cj.ID.Counter),
		Ops:       ops,
		Deps:      deps,
		Lamport:   id.Lamport(cj.Lamport),
		Timestamp: cj.Timestamp,
		CommitMsg: cj.Msg,
	}, nil
}

func truncateChange(c *oplog.Change, toCounter id.Counter) *oplog.Change {
	if toCounter >= c.End() {
		return c
	}
	if toCounter <= c.Start {
		return nil
	}
	before, _ := oplog.SplitOps(c.Peer, c.Ops, c.Start, toCounter)
	return &oplog.Change{
		Peer: c.Peer, Start: c.Start, Ops: before,
		Deps: c.Deps, Lamport: c.Lamport, Timestamp: c.Timestamp, CommitMsg: c.CommitMsg,
	}
}

// EncodeJSONUpdates renders every change in [from, to) as a JSONDoc.
func EncodeJSONUpdates(ar *arena.Arena, log *oplog.Log, from, to id.VersionVector) (*JSONDoc, error) {
	var changes []*oplog.Change
	for _, c := range log.ChangesFrom(from) {
		cut := truncateChange(c, to.Get(c.Peer))
		if cut == nil {
			continue
		}
		changes = append(changes, cut)
	}
	startIDs := make([]jsonID, 0, len(from))
	peerSet := make(map[id.Peer]bool)
	for p := range from {
		startIDs = append(startIDs, jsonID{Peer: uint64(p), Counter: int32(from[p])})
	}
	doc := &JSONDoc{SchemaVersion: jsonSchemaVersion, StartVersion: startIDs}
	doc.Changes = make([]jsonChange, len(changes))
	for i, c := range changes {
		doc.Changes[i] = changeToJSON(ar, c)
		peerSet[c.Peer] = true
	}
	for p := range peerSet {
		doc.Peers = append(doc.Peers, strconv.FormatUint(uint64(p), 10))
	}
	return doc, nil
}

// MarshalJSONUpdates is EncodeJSONUpdates followed by pretty-printing, the
// form Document.ExportJSONUpdates hands back as bytes.
func MarshalJSONUpdates(ar *arena.Arena, log *oplog.Log, from, to id.VersionVector) ([]byte, error) {
	doc, err := EncodeJSONUpdates(ar, log, from, to)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(doc, "", "  ")
}

// DecodeJSONUpdates parses buf and reconstructs the changes it describes,
// ready for the same causal pending-import path a binary Updates blob uses.
func DecodeJSONUpdates(ar *arena.Arena, buf []byte) ([]*oplog.Change, error) {
	var doc JSONDoc
	if err := json.Unmarshal(buf, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	if doc.SchemaVersion != jsonSchemaVersion {
		return nil, fmt.Errorf("encoding: unsupported JSON schema version %d", doc.SchemaVersion)
	}
	out := make([]*oplog.Change, len(doc.Changes))
	for i, cj := range doc.Changes {
		c, err := changeFromJSON(ar, cj)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// RedactJSONUpdates rewrites every op whose ID falls in [from, to) to a
// null-equivalent placeholder, preserving IDs, container refs and
// parent/child links: Key and FracIndex survive
// (they are structural addressing, not payload), Text/Value/Payload do not.
func RedactJSONUpdates(buf []byte, from, to id.VersionVector) ([]byte, error) {
	var doc JSONDoc
	if err := json.Unmarshal(buf, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	for ci, c := range doc.Changes {
		peer := id.Peer(c.ID.Peer)
		lo, hi := from.Get(peer), to.Get(peer)
		for oi, op := range c.Ops {
			counter := id.Counter(op.Counter)
			if counter < lo || counter >= hi {
				continue
			}
			op := &doc.Changes[ci].Ops[oi]
			op.Text = ""
			op.Value = nil
			op.Payload = nil
			op.Redacted = true
		}
	}
	return json.MarshalIndent(doc, "", "  ")
}
