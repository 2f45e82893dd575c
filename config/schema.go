package config

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/openchargingcloud/wwcp/core/charging"
)

// InfrastructureSchema returns the JSON schema of the infrastructure document.
func InfrastructureSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(&charging.Infrastructure{})
	schema.Title = "WWCP infrastructure"
	b, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return b, nil
}
