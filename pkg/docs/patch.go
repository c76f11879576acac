package docs

import (
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/cuemby/hutch/pkg/kv"
)

// applyJSONPatch applies an RFC 6902 patch document to a tree. A nil tree
// patches as an empty object.
func applyJSONPatch(root *Node, payload []byte) (*Node, error) {
	patch, err := jsonpatch.DecodePatch(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: bad patch: %v", kv.ErrArgs, err)
	}
	doc := []byte("{}")
	if root != nil {
		doc = EncodeJSON(root)
	}
	patched, err := patch.Apply(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: patch failed: %v", kv.ErrArgs, err)
	}
	return DecodeJSON(patched)
}

// applyMergePatch applies an RFC 7386 merge patch to a tree.
func applyMergePatch(root *Node, payload []byte) (*Node, error) {
	doc := []byte("{}")
	if root != nil {
		doc = EncodeJSON(root)
	}
	merged, err := jsonpatch.MergePatch(doc, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: merge patch failed: %v", kv.ErrArgs, err)
	}
	return DecodeJSON(merged)
}
