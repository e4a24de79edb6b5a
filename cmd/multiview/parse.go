package main

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-multiview/fusion"
	"github.com/nvr-ai/go-multiview/labels"
)

type pair struct {
	key   string
	value string
}

// parsePairs splits key=value arguments, rejecting repeated keys.
func parsePairs(args []string) ([]pair, error) {
	if len(args) == 0 {
		return nil, errors.New("expected at least one camera=path argument")
	}
	seen := make(map[string]bool, len(args))
	out := make([]pair, 0, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" || value == "" {
			return nil, errors.Errorf("invalid argument %q, expected camera=path", arg)
		}
		if seen[key] {
			return nil, errors.Errorf("camera %q given twice", key)
		}
		seen[key] = true
		out = append(out, pair{key: key, value: value})
	}
	return out, nil
}

// parseCounts reads camera:label=n,label=n arguments. A camera with no
// counts ("camera:") contributes an empty set.
func parseCounts(args []string) (map[string]fusion.Counts, error) {
	if len(args) == 0 {
		return nil, errors.New("expected at least one camera:label=n argument")
	}
	sets := make(map[string]fusion.Counts, len(args))
	for _, arg := range args {
		camera, list, ok := strings.Cut(arg, ":")
		if !ok || camera == "" {
			return nil, errors.Errorf("invalid argument %q, expected camera:label=n", arg)
		}
		if _, dup := sets[camera]; dup {
			return nil, errors.Errorf("camera %q given twice", camera)
		}

		set := make(fusion.Counts)
		for _, item := range strings.Split(list, ",") {
			if item = strings.TrimSpace(item); item == "" {
				continue
			}
			name, num, ok := strings.Cut(item, "=")
			if !ok {
				return nil, errors.Errorf("invalid count %q for camera %s", item, camera)
			}
			n, err := strconv.Atoi(num)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid count %q for camera %s", item, camera)
			}
			set[labels.Label(strings.TrimSpace(name))] += n
		}
		sets[camera] = set
	}
	return sets, nil
}
