package stitch

import (
	"encoding/json"
	"path"

	"github.com/stitchkb/stitchkb/pkg/errors"
	"github.com/stitchkb/stitchkb/pkg/store"
)

// CompactGraph is the stitched projection of one artifact's call graph onto
// store-assigned global IDs. It is the unit of downstream exchange: small
// enough to travel as a single message, yet sufficient to reconstruct the
// artifact's edges against the shared callable space.
type CompactGraph struct {
	PackageVersionID int64  `json:"index" bson:"index"`
	Forge            string `json:"forge" bson:"forge"`
	Product          string `json:"product" bson:"product"`
	Version          string `json:"version" bson:"version"`

	// NodeIDs lists the artifact's global IDs with internal callables first.
	// The first InternalCount entries are internal.
	NodeIDs       []int64 `json:"nodes" bson:"nodes"`
	InternalCount int     `json:"numInternalNodes" bson:"numInternalNodes"`

	Edges []CompactEdge `json:"edges" bson:"edges"`
}

// CompactEdge is one translated edge between global IDs, carrying the
// receiver rows and leftover call-site metadata projected during stitching.
type CompactEdge struct {
	Source    int64            `json:"source" bson:"source"`
	Target    int64            `json:"target" bson:"target"`
	Receivers []store.Receiver `json:"receivers,omitempty" bson:"receivers,omitempty"`
	Metadata  map[string]any   `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// Marshal renders the compact graph as a single JSON line.
func (c *CompactGraph) Marshal() ([]byte, error) {
	out, err := json.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "marshaling compact graph")
	}
	return out, nil
}

// ParseCompactGraph decodes a compact graph from its single-line JSON form.
func ParseCompactGraph(data []byte) (*CompactGraph, error) {
	var c CompactGraph
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidDocument, err, "parsing compact graph")
	}
	return &c, nil
}

// OutputPath derives the archive location for the compact graph:
// forge/first-letter/product/product_version.json. Products shorter than one
// character cannot occur for a stitched graph.
func (c *CompactGraph) OutputPath() string {
	return path.Join(
		c.Forge,
		c.Product[:1],
		c.Product,
		c.Product+"_"+c.Version+".json",
	)
}
