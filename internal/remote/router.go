package remote

import "context"

// Router dispatches each call to the client owning the table. Legacy
// direct-mode launches may place the words and users tables in different
// bases, each needing its own client.
type Router struct {
	routes   map[string]Client
	fallback Client
}

// NewRouter creates a router that sends unrouted tables to fallback.
func NewRouter(fallback Client) *Router {
	return &Router{routes: map[string]Client{}, fallback: fallback}
}

// Route binds a table name to a client. Not safe to call after the router is
// in use.
func (r *Router) Route(table string, c Client) {
	r.routes[table] = c
}

func (r *Router) pick(table string) Client {
	if c, ok := r.routes[table]; ok {
		return c
	}
	return r.fallback
}

func (r *Router) List(ctx context.Context, table string, opts ListOptions) (ListResult, error) {
	return r.pick(table).List(ctx, table, opts)
}

func (r *Router) Get(ctx context.Context, table, id string) (Record, error) {
	return r.pick(table).Get(ctx, table, id)
}

func (r *Router) Create(ctx context.Context, table string, fields map[string]any) (Record, error) {
	return r.pick(table).Create(ctx, table, fields)
}

func (r *Router) Update(ctx context.Context, table, id string, fields map[string]any) (Record, error) {
	return r.pick(table).Update(ctx, table, id, fields)
}
