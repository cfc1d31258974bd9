package lifecycle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"sendit/internal/queue"
)

// Normalize converts a raw backend event into a Record. It never fails:
// malformed payloads, missing keys, and unknown names produce Unknown.
func Normalize(name string, payload json.RawMessage) Record {
	switch name {
	case EventInboundAdded:
		var p InboundAddedPayload
		if err := decode(payload, &p); err != nil {
			return unknown(name, err)
		}
		if p.Name == "" {
			return missingKey(name)
		}
		return Added{Target: inbound(p.Name), Size: p.Size, Icon: p.Icon}

	case EventInboundProgress:
		var p InboundProgressPayload
		if err := decode(payload, &p); err != nil {
			return unknown(name, err)
		}
		if p.Name == "" {
			return missingKey(name)
		}
		return Progress{Target: inbound(p.Name), Progress: queue.ClampProgress(p.Progress), Speed: cleanSpeed(p.Speed)}

	case EventInboundCompleted:
		var p InboundCompletedPayload
		if err := decode(payload, &p); err != nil {
			return unknown(name, err)
		}
		if p.Name == "" {
			return missingKey(name)
		}
		return Completed{Target: inbound(p.Name), Path: p.Path}

	case EventInboundError, EventOutboundError:
		var p ErrorPayload
		if err := decode(payload, &p); err != nil {
			return unknown(name, err)
		}
		target := inbound(p.Name)
		if name == EventOutboundError {
			target = outbound(p.Name)
		}
		if target.Key == "" {
			return missingKey(name)
		}
		return Error{Target: target, Reason: strings.TrimSpace(p.Error)}

	case EventInboundAborted:
		var p AbortedPayload
		if err := decode(payload, &p); err != nil {
			return unknown(name, err)
		}
		if p.Name == "" {
			return missingKey(name)
		}
		return Aborted{Target: inbound(p.Name), Reason: strings.TrimSpace(p.Reason)}

	case EventInboundAllComplete:
		return AllComplete{}

	case EventOutboundAdded:
		var p OutboundAddedPayload
		if err := decode(payload, &p); err != nil {
			return unknown(name, err)
		}
		key := p.Name
		if key == "" {
			key = p.Path
		}
		target := outbound(key)
		if target.Key == "" {
			return missingKey(name)
		}
		return Added{Target: target, Size: p.Size, Icon: p.Icon, Path: p.Path}

	case EventOutboundProgress:
		var p OutboundProgressPayload
		if err := decode(payload, &p); err != nil {
			return unknown(name, err)
		}
		target := outbound(p.Path)
		if target.Key == "" {
			return missingKey(name)
		}
		return Progress{Target: target, Progress: queue.ClampProgress(p.Progress)}

	case EventOutboundCompleted, EventOutboundRemoved:
		key, err := decodeName(payload)
		if err != nil {
			return unknown(name, err)
		}
		target := outbound(key)
		if target.Key == "" {
			return missingKey(name)
		}
		if name == EventOutboundRemoved {
			return Removed{Target: target}
		}
		return Completed{Target: target}

	default:
		return Unknown{Name: name, Reason: "unrecognized event name"}
	}
}

func inbound(name string) Target {
	return Target{Queue: queue.Inbound, Key: name}
}

// Outbound keys are derived from paths; the backend sends either the full
// path or the bare file name, and both derive to the same key.
func outbound(pathOrName string) Target {
	return Target{Queue: queue.Outbound, Key: queue.DeriveKey(pathOrName)}
}

func decode(payload json.RawMessage, dst any) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return fmt.Errorf("empty payload")
	}
	if err := json.Unmarshal(trimmed, dst); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// decodeName accepts {"name": "..."} or a bare JSON string, which older
// backends emitted for completed and removed events.
func decodeName(payload json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var name string
		if err := json.Unmarshal(trimmed, &name); err != nil {
			return "", fmt.Errorf("decode payload: %w", err)
		}
		return name, nil
	}
	var p NamePayload
	if err := decode(payload, &p); err != nil {
		return "", err
	}
	return p.Name, nil
}

func cleanSpeed(value float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0
	}
	return value
}

func unknown(name string, err error) Unknown {
	return Unknown{Name: name, Reason: err.Error()}
}

func missingKey(name string) Unknown {
	return Unknown{Name: name, Reason: "payload has no item key"}
}
