// Package loader reads feature-set definitions from YAML, validates each
// document against the embedded CUE schema, and converts it to the
// runtime's statement types.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/verveworks/verve/internal/lang"
	"github.com/verveworks/verve/internal/value"
)

// document mirrors the YAML shape of a definition file.
type document struct {
	FeatureSets []featureSetDoc `yaml:"feature_sets"`
}

type featureSetDoc struct {
	Name       string         `yaml:"name"`
	Activity   string         `yaml:"activity,omitempty"`
	Statements []statementDoc `yaml:"statements"`
}

type statementDoc struct {
	Verb       string         `yaml:"verb"`
	Result     string         `yaml:"result,omitempty"`
	Object     objectDoc      `yaml:"object"`
	With       *objectDoc     `yaml:"with,omitempty"`
	Guard      string         `yaml:"guard,omitempty"`
	Where      *predicateDoc  `yaml:"where,omitempty"`
	Path       string         `yaml:"path,omitempty"`
	Target     string         `yaml:"target,omitempty"`
	Transition *transitionDoc `yaml:"transition,omitempty"`
}

type objectDoc struct {
	Preposition string `yaml:"preposition"`
	Base        string `yaml:"base,omitempty"`
	Literal     any    `yaml:"literal,omitempty"`
}

type predicateDoc struct {
	Path    string `yaml:"path,omitempty"`
	Op      string `yaml:"op"`
	Operand any    `yaml:"operand"`
}

type transitionDoc struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Load parses one YAML definition document, validates it against the schema
// and converts it.
func Load(data []byte) ([]*lang.FeatureSet, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse definitions: %w", err)
	}
	if err := validate(data); err != nil {
		return nil, err
	}

	out := make([]*lang.FeatureSet, 0, len(doc.FeatureSets))
	for _, fsDoc := range doc.FeatureSets {
		fs, err := convertFeatureSet(fsDoc)
		if err != nil {
			return nil, fmt.Errorf("feature set %q: %w", fsDoc.Name, err)
		}
		out = append(out, fs)
	}
	return out, nil
}

// LoadFile loads one definition file.
func LoadFile(path string) ([]*lang.FeatureSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	sets, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sets, nil
}

// LoadDir loads every .yaml/.yml file under dir, in lexical order so loads
// are deterministic.
func LoadDir(dir string) ([]*lang.FeatureSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read definitions directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no definition files in %s", dir)
	}
	sort.Strings(files)

	var out []*lang.FeatureSet
	for _, f := range files {
		sets, err := LoadFile(f)
		if err != nil {
			return nil, err
		}
		out = append(out, sets...)
	}
	return out, nil
}

func convertFeatureSet(doc featureSetDoc) (*lang.FeatureSet, error) {
	fs := &lang.FeatureSet{
		Name:       doc.Name,
		Activity:   doc.Activity,
		Statements: make([]lang.Statement, 0, len(doc.Statements)),
	}
	for i, sd := range doc.Statements {
		stmt, err := convertStatement(sd)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i, err)
		}
		fs.Statements = append(fs.Statements, stmt)
	}
	return fs, nil
}

func convertStatement(doc statementDoc) (lang.Statement, error) {
	obj, err := convertObject(doc.Object)
	if err != nil {
		return lang.Statement{}, fmt.Errorf("object: %w", err)
	}

	stmt := lang.Statement{
		Verb:   doc.Verb,
		Result: lang.ResultRef{Base: doc.Result},
		Object: obj,
		Guard:  doc.Guard,
		Path:   doc.Path,
		Target: doc.Target,
	}
	if doc.With != nil {
		with, err := convertObject(*doc.With)
		if err != nil {
			return lang.Statement{}, fmt.Errorf("with: %w", err)
		}
		stmt.With = &with
	}
	if doc.Where != nil {
		operand, err := value.FromGo(doc.Where.Operand)
		if err != nil {
			return lang.Statement{}, fmt.Errorf("predicate operand: %w", err)
		}
		stmt.Where = &lang.Predicate{
			Path:    doc.Where.Path,
			Op:      lang.CompareOp(doc.Where.Op),
			Operand: operand,
		}
	}
	if doc.Transition != nil {
		stmt.Transition = &lang.TransitionSpec{
			From: doc.Transition.From,
			To:   doc.Transition.To,
		}
	}
	return stmt, nil
}

// convertObject maps the YAML object clause. A dotted base becomes a base
// name plus field-path specifiers.
func convertObject(doc objectDoc) (lang.ObjectRef, error) {
	obj := lang.ObjectRef{Preposition: lang.Preposition(doc.Preposition)}

	if doc.Literal != nil {
		lit, err := value.FromGo(doc.Literal)
		if err != nil {
			return lang.ObjectRef{}, fmt.Errorf("literal: %w", err)
		}
		obj.Literal = lit
		return obj, nil
	}

	if doc.Base == "" {
		return lang.ObjectRef{}, fmt.Errorf("object needs a base or a literal")
	}
	parts := strings.Split(doc.Base, ".")
	obj.Base = parts[0]
	if len(parts) > 1 {
		obj.Specifiers = parts[1:]
	}
	return obj, nil
}
