// Package providers defines the OAuth/OIDC source types an administrator can configure.
package providers

// SourceType describes a provider type: its display name, whether an
// administrator may override its endpoints, and the default endpoint and
// discovery URLs. A nil URL means the value must be supplied explicitly.
type SourceType struct {
	Name             string
	VerboseName      string
	URLsCustomizable bool

	RequestTokenURL  *string
	AuthorizationURL *string
	AccessTokenURL   *string
	ProfileURL       *string

	OIDCWellKnownURL *string
	OIDCJWKSURL      *string
}

// DefaultTypeName is the name of the placeholder returned for unknown types.
const DefaultTypeName = "default"

// defaultType is returned by Find for names that are not registered.
var defaultType = SourceType{
	Name:        DefaultTypeName,
	VerboseName: "Default",
}

// Registry is a static lookup table of source types, keyed by name.
type Registry struct {
	types map[string]SourceType
	order []string
}

// NewRegistry creates a registry with all built-in source types.
func NewRegistry() *Registry {
	r := &Registry{
		types: make(map[string]SourceType),
	}

	r.Register(GenericOIDC())
	r.Register(Okta())
	r.Register(Auth0())
	r.Register(Keycloak())
	r.Register(AzureAD())
	r.Register(EntraID())
	r.Register(GitHub())
	r.Register(GitLab())
	r.Register(Google())
	r.Register(Discord())
	r.Register(Facebook())
	r.Register(Twitter())
	r.Register(Reddit())
	r.Register(Twitch())
	r.Register(Patreon())
	r.Register(Mailcow())

	return r
}

// Register adds a source type. Registering an existing name replaces its
// descriptor but keeps its original position in List.
func (r *Registry) Register(t SourceType) {
	if _, exists := r.types[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.types[t.Name] = t
}

// Find returns the source type for name. Unknown names yield the placeholder
// type whose optional URLs are all nil.
func (r *Registry) Find(name string) SourceType {
	if t, ok := r.types[name]; ok {
		return t
	}
	return defaultType
}

// Lookup returns the source type for name and whether it is registered.
func (r *Registry) Lookup(name string) (SourceType, bool) {
	t, ok := r.types[name]
	return t, ok
}

// List returns all registered source types in registration order.
func (r *Registry) List() []SourceType {
	types := make([]SourceType, 0, len(r.order))
	for _, name := range r.order {
		types = append(types, r.types[name])
	}
	return types
}

// Has reports whether name is a registered source type.
func (r *Registry) Has(name string) bool {
	_, ok := r.types[name]
	return ok
}

func url(s string) *string {
	return &s
}
