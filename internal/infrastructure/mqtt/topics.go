package mqtt

import (
	"fmt"
	"strconv"
	"strings"
)

// Topics builds the bridge's host-boundary topic tree under a prefix:
//
//	<prefix>/status                   bridge online/offline (retained, LWT)
//	<prefix>/node/<id>/out/<port>     node output messages
//	<prefix>/node/<id>/status         node status (retained)
//	<prefix>/node/<id>/in             messages injected into a node
type Topics struct {
	Prefix string
}

// BridgeStatus returns the retained online/offline topic.
func (t Topics) BridgeStatus() string {
	return t.Prefix + "/status"
}

// NodeOutput returns the topic for output port N of a node.
func (t Topics) NodeOutput(nodeID string, port int) string {
	return fmt.Sprintf("%s/node/%s/out/%d", t.Prefix, nodeID, port)
}

// NodeStatus returns the retained status topic of a node.
func (t Topics) NodeStatus(nodeID string) string {
	return fmt.Sprintf("%s/node/%s/status", t.Prefix, nodeID)
}

// NodeInput returns the input topic of a node.
func (t Topics) NodeInput(nodeID string) string {
	return fmt.Sprintf("%s/node/%s/in", t.Prefix, nodeID)
}

// AllNodeInputs matches every node input topic.
func (t Topics) AllNodeInputs() string {
	return t.Prefix + "/node/+/in"
}

// ParseNodeInput extracts the node id from an input topic.
func (t Topics) ParseNodeInput(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.Prefix+"/node/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/in")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// ParseNodeOutput extracts node id and port from an output topic.
func (t Topics) ParseNodeOutput(topic string) (nodeID string, port int, ok bool) {
	rest, found := strings.CutPrefix(topic, t.Prefix+"/node/")
	if !found {
		return "", 0, false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[1] != "out" || parts[0] == "" {
		return "", 0, false
	}
	port, err := strconv.Atoi(parts[2])
	if err != nil || port < 0 {
		return "", 0, false
	}
	return parts[0], port, true
}
