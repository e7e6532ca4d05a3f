package config

// View is a read-only, concurrency-safe snapshot of the currently-loaded
// config: the group list and an allow-list of client identities keyed by
// GUID. A Watcher swaps in a new View wholesale on every successful reload;
// it is never mutated in place.
type View struct {
	groups  []GroupConfig
	clients map[string]ClientConfig
}

func buildView(file *File) *View {
	clients := make(map[string]ClientConfig, len(file.Clients))
	for _, c := range file.Clients {
		clients[c.GUID] = c
	}
	groups := make([]GroupConfig, len(file.Groups))
	copy(groups, file.Groups)
	return &View{groups: groups, clients: clients}
}

// Groups returns the configured groups in file order.
func (v *View) Groups() []GroupConfig {
	if v == nil {
		return nil
	}
	return v.groups
}

// LookupClient returns the allow-listed client config for guid, if any.
func (v *View) LookupClient(guid string) (ClientConfig, bool) {
	if v == nil {
		return ClientConfig{}, false
	}
	c, ok := v.clients[guid]
	return c, ok
}
