package sources

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/panorama-game/rating-server/internal/ranking"
)

// yamlPlayersDocument defers decoding of each player so a bad record can be
// reported by position
type yamlPlayersDocument struct {
	Players []yaml.Node `yaml:"players"`
}

type jsonPlayersDocument struct {
	Players []json.RawMessage `json:"players"`
}

// errDocument marks failures of the document as a whole
var errDocument = errors.New("invalid players document")

// decodeYAMLPlayers parses a YAML (or JSON) players document. A record that
// does not decode is reported as a *ranking.MalformedRecordError; any other
// failure wraps errDocument.
func decodeYAMLPlayers(data []byte) ([]ranking.Record, error) {
	var doc yamlPlayersDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", errDocument, err)
	}

	records := make([]ranking.Record, 0, len(doc.Players))
	for i := range doc.Players {
		node := &doc.Players[i]
		var record ranking.Record
		if err := node.Decode(&record); err != nil {
			return nil, &ranking.MalformedRecordError{
				Index:  i,
				Field:  yamlInvalidField(node),
				Reason: "is invalid: " + yamlReason(err),
			}
		}
		records = append(records, record)
	}
	return records, nil
}

// yamlInvalidField returns the key of the first mapping entry that fails to decode
func yamlInvalidField(node *yaml.Node) string {
	if node.Kind != yaml.MappingNode {
		return ""
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		single := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Content: node.Content[i : i+2]}
		var record ranking.Record
		if single.Decode(&record) != nil {
			return node.Content[i].Value
		}
	}
	return ""
}

func yamlReason(err error) string {
	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) {
		return strings.Join(typeErr.Errors, "; ")
	}
	return err.Error()
}

// decodeJSONPlayers is the JSON counterpart of decodeYAMLPlayers
func decodeJSONPlayers(data []byte) ([]ranking.Record, error) {
	var doc jsonPlayersDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", errDocument, err)
	}

	records := make([]ranking.Record, 0, len(doc.Players))
	for i, raw := range doc.Players {
		var record ranking.Record
		if err := json.Unmarshal(raw, &record); err != nil {
			malformed := &ranking.MalformedRecordError{Index: i, Reason: "is invalid: " + err.Error()}
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) {
				malformed.Field = typeErr.Field
				malformed.Reason = fmt.Sprintf("is a %s, want %s", typeErr.Value, typeErr.Type)
			}
			return nil, malformed
		}
		records = append(records, record)
	}
	return records, nil
}
