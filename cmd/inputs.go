package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/finextract/internal/pipeline"
	"github.com/sells-group/finextract/pkg/extractor"
)

// manifest lists the documents of one report.
//
//	report_id: rpt-2024-017
//	documents:
//	  - id: return-2022
//	    path: returns/2022-1120s.pdf
//	  - path: extracted/2021-1120s.json
type manifest struct {
	ReportID  string          `yaml:"report_id"`
	Documents []manifestEntry `yaml:"documents"`

	dir string
}

type manifestEntry struct {
	ID   string `yaml:"id"`
	Path string `yaml:"path"`
}

// loadManifest reads a report manifest. Relative document paths resolve
// against the manifest's directory.
func loadManifest(path string) (*manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read manifest %s", path)
	}

	var m manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, eris.Wrapf(err, "parse manifest %s", path)
	}
	if m.ReportID == "" {
		return nil, eris.Errorf("manifest %s: report_id is required", path)
	}
	if len(m.Documents) == 0 {
		return nil, eris.Errorf("manifest %s: no documents", path)
	}
	for i, d := range m.Documents {
		if d.Path == "" {
			return nil, eris.Errorf("manifest %s: document %d has no path", path, i+1)
		}
	}
	m.dir = filepath.Dir(path)
	return &m, nil
}

// load reads every listed document.
func (m *manifest) load() ([]pipeline.Document, error) {
	docs := make([]pipeline.Document, 0, len(m.Documents))
	for _, d := range m.Documents {
		p := d.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(m.dir, p)
		}
		doc, err := loadDocument(d.ID, p)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// loadDocument reads a PDF for the extraction service or a saved Stage 1
// extraction (.json). An empty id falls back to the extraction's own id and
// then to the file name.
func loadDocument(id, path string) (pipeline.Document, error) {
	name := filepath.Base(path)
	stem := strings.TrimSuffix(name, filepath.Ext(name))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		s1, err := extractor.LoadFile(path)
		if err != nil {
			return pipeline.Document{}, err
		}
		if id == "" {
			id = s1.DocumentID
		}
		if id == "" {
			id = stem
		}
		s1.DocumentID = id
		return pipeline.Document{DocumentID: id, Filename: s1.Filename, Stage1: s1}, nil
	case ".pdf":
		b, err := os.ReadFile(path)
		if err != nil {
			return pipeline.Document{}, eris.Wrapf(err, "read %s", path)
		}
		if id == "" {
			id = stem
		}
		return pipeline.Document{DocumentID: id, Filename: name, PDF: b}, nil
	default:
		return pipeline.Document{}, eris.Errorf("unsupported document %s: expected .pdf or .json", path)
	}
}
