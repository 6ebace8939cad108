package extractor

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/finextract/internal/model"
)

// Decode parses a saved extraction. Both the bare Stage 1 output and the
// service's {success, data, error} envelope are accepted.
func Decode(b []byte) (*model.Stage1Output, error) {
	var env wireResponse
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, eris.Wrap(err, "extractor: decode extraction")
	}
	if env.Data != nil || env.Error != nil {
		if !env.Success || env.Data == nil {
			return nil, codeError(env.Error)
		}
		return env.Data, nil
	}

	var out model.Stage1Output
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, eris.Wrap(err, "extractor: decode extraction")
	}
	return &out, nil
}

// LoadFile reads a saved extraction from path.
func LoadFile(path string) (*model.Stage1Output, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "extractor: read %s", path)
	}
	out, err := Decode(b)
	if err != nil {
		return nil, eris.Wrapf(err, "extractor: load %s", path)
	}
	return out, nil
}
