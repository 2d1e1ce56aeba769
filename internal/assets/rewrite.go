package assets

import (
	"context"
	"encoding/json"
	"fmt"
)

// imageAssetType is the document type of uploaded images.
const imageAssetType = "sanity.imageAsset"

// Rewrite downloads every image asset referenced in result and replaces its
// url with the public path. An object is treated as an asset when its _type is
// sanity.imageAsset or when it is the value of an "asset" key and has a url.
func (f *Fetcher) Rewrite(ctx context.Context, result json.RawMessage) (any, error) {
	var doc any
	if err := json.Unmarshal(result, &doc); err != nil {
		return nil, fmt.Errorf("decoding result for asset rewrite: %w", err)
	}
	if err := f.walk(ctx, doc, false); err != nil {
		return nil, err
	}
	return doc, nil
}

func (f *Fetcher) walk(ctx context.Context, node any, underAssetKey bool) error {
	switch v := node.(type) {
	case map[string]any:
		if isAsset(v, underAssetKey) {
			url, _ := v["url"].(string)
			public, err := f.Save(ctx, url)
			if err != nil {
				return err
			}
			v["url"] = public
		}
		for key, child := range v {
			if err := f.walk(ctx, child, key == "asset"); err != nil {
				return err
			}
		}
	case []any:
		for _, child := range v {
			if err := f.walk(ctx, child, false); err != nil {
				return err
			}
		}
	}
	return nil
}

func isAsset(obj map[string]any, underAssetKey bool) bool {
	url, ok := obj["url"].(string)
	if !ok || url == "" {
		return false
	}
	if t, _ := obj["_type"].(string); t == imageAssetType {
		return true
	}
	return underAssetKey
}
