package dbtcli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"

	"github.com/roach88/dbtbridge/internal/ir"
)

// logLine is the subset of a dbt structured (--log-format json) log line
// the bridge reads.
type logLine struct {
	Info struct {
		Name  string `json:"name"`
		Code  string `json:"code"`
		Level string `json:"level"`
		Msg   string `json:"msg"`
	} `json:"info"`
	Data struct {
		NodeInfo *nodeInfo `json:"node_info"`
	} `json:"data"`
}

type nodeInfo struct {
	UniqueID     json.RawMessage `json:"unique_id"`
	NodeName     string          `json:"node_name"`
	NodeStatus   string          `json:"node_status"`
	ResourceType string          `json:"resource_type"`
	NodePath     string          `json:"node_path"`
}

const eventNodeFinished = "NodeFinished"

// ParseLogLine maps one stdout line of dbt onto an Event.
//
// A successful NodeFinished becomes an output for models, seeds and
// snapshots and an observation for data and unit tests. Hooks, analyses
// and other resources stay log events. Any failed node is a failure
// event. Lines that are not JSON are log events. The unique_id is carried through with
// whatever JSON type dbt emitted; checking it is the reconciler's job.
func ParseLogLine(line []byte) ir.Event {
	line = bytes.TrimSpace(line)

	var ll logLine
	if err := json.Unmarshal(line, &ll); err != nil || ll.Info.Name == "" {
		return ir.Event{Kind: ir.EventLog, Message: string(line)}
	}

	ev := ir.Event{Kind: ir.EventLog, Message: ll.Info.Msg}
	ni := ll.Data.NodeInfo
	if ll.Info.Name != eventNodeFinished || ni == nil {
		return ev
	}

	ev.Status = ni.NodeStatus
	ev.OutputName = ni.NodeName
	ev.Metadata = ir.Object{}
	if len(ni.UniqueID) > 0 {
		id, err := ir.ParseValue(ni.UniqueID)
		if err != nil {
			id = ir.Null{}
		}
		ev.Metadata[ir.MetaUniqueID] = id
	}
	if ni.ResourceType != "" {
		ev.Metadata["resource_type"] = ir.String(ni.ResourceType)
	}

	switch ni.NodeStatus {
	case ir.StatusSuccess, ir.StatusPass, ir.StatusWarn:
		switch {
		case ir.IsAssetResource(ni.ResourceType):
			ev.Kind = ir.EventOutput
		case ir.IsTestResource(ni.ResourceType):
			ev.Kind = ir.EventObservation
		}
	case ir.StatusError, ir.StatusFail, ir.StatusSkipped:
		ev.Kind = ir.EventFailure
	}
	return ev
}

// maxLogLine bounds one structured log line; compiled SQL can be large.
const maxLogLine = 16 * 1024 * 1024

// ParseLog reads a dbt structured log stream line by line. Blank lines are
// skipped. The events read before a read error are returned with it.
func ParseLog(r io.Reader) ([]ir.Event, error) {
	events := []ir.Event{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLogLine)
	for scanner.Scan() {
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		events = append(events, ParseLogLine(scanner.Bytes()))
	}
	return events, scanner.Err()
}
