package provider

import (
	"github.com/airenas/go-app/pkg/goapp"
)

// Registry keeps adapters in registration order
type Registry struct {
	adapters []Adapter
}

// NewRegistry creates registry, nil adapters are ignored
func NewRegistry(adapters ...Adapter) *Registry {
	res := &Registry{}
	for _, a := range adapters {
		if a != nil {
			res.adapters = append(res.adapters, a)
		}
	}
	return res
}

// Available returns configured adapters for the video
func (r *Registry) Available(videoPath string) []Adapter {
	res := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		if !a.IsConfigured() {
			goapp.Log.Warn().Err(&ConfigurationError{Provider: a.Name()}).Str("video", videoPath).Msg("skip provider")
			continue
		}
		res = append(res, a)
	}
	goapp.Log.Info().Str("video", videoPath).Int("count", len(res)).Msg("available providers")
	return res
}

// Names returns all registered names in order
func (r *Registry) Names() []string {
	res := make([]string, 0, len(r.adapters))
	for _, a := range r.adapters {
		res = append(res, a.Name())
	}
	return res
}
