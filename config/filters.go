package config

import (
	"fmt"
	"reflect"

	"github.com/go-viper/mapstructure/v2"
)

// normalizeFilterItem turns one raw YAML filter entry into a FilterRule.
// Mirrors original_source/nbkp/config/protocol.py's
// SyncConfig.normalize_filters: a bare string passes through unchanged; a
// {"include": pattern} map becomes "+ pattern"; a {"exclude": pattern} map
// becomes "- pattern".
func normalizeFilterItem(item interface{}) (FilterRule, error) {
	switch v := item.(type) {
	case string:
		return FilterRule(v), nil
	case FilterRule:
		return v, nil
	case map[string]interface{}:
		if pattern, ok := v["include"]; ok {
			s, ok := pattern.(string)
			if !ok {
				return "", fmt.Errorf("filter include value must be a string, got %v", pattern)
			}
			return FilterRule("+ " + s), nil
		}
		if pattern, ok := v["exclude"]; ok {
			s, ok := pattern.(string)
			if !ok {
				return "", fmt.Errorf("filter exclude value must be a string, got %v", pattern)
			}
			return FilterRule("- " + s), nil
		}
		return "", fmt.Errorf("filter must have 'include' or 'exclude' key, got: %v", v)
	default:
		return "", fmt.Errorf("filter must be a string or a map with 'include'/'exclude' key, got: %#v", item)
	}
}

// filterDecodeHook is a mapstructure.DecodeHookFuncType that normalizes
// each entry of a SyncConfig's "filters" list as it is decoded.
func filterDecodeHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(FilterRule("")) {
		return data, nil
	}
	return normalizeFilterItem(data)
}

// volumeDecodeHook is a mapstructure.DecodeHookFuncType that decodes a raw
// map into the correct Volume concrete type based on its "type" field,
// mirroring the teacher's enum-wrapper dispatch (JobEnum, ConnectEnum)
// keyed by a discriminator.
func volumeDecodeHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf((*Volume)(nil)).Elem() {
		return data, nil
	}
	m, ok := data.(map[string]interface{})
	if !ok {
		return data, fmt.Errorf("volume entry must be a mapping, got %T", data)
	}
	kind, _ := m["type"].(string)
	switch VolumeKind(kind) {
	case VolumeKindLocal:
		var lv LocalVolume
		if err := decodeInto(m, &lv); err != nil {
			return nil, err
		}
		return &lv, nil
	case VolumeKindRemote:
		var rv RemoteVolume
		if err := decodeInto(m, &rv); err != nil {
			return nil, err
		}
		return &rv, nil
	default:
		return nil, fmt.Errorf("volume has unknown or missing type %q (want %q or %q)", kind, VolumeKindLocal, VolumeKindRemote)
	}
}

func decodeInto(m map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.ComposeDecodeHookFunc(filterDecodeHook),
	})
	if err != nil {
		return err
	}
	return dec.Decode(m)
}
