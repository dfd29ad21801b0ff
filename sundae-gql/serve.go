package sundaegql

import (
	"fmt"

	"github.com/SundaeSwap-finance/sundae-slides/graphiql"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"
)

// Mount attaches the graphql endpoint to router, plus GraphiQL when
// introspection is allowed.
func Mount(router chi.Router, resolver Resolver) error {
	config := resolver.Config()
	relay, err := GraphQLRelay(resolver)
	if err != nil {
		return err
	}

	router.Post("/graphql", middleware.NoCache(relay).ServeHTTP)
	// Allow arbitrary path parameters, for better UX in the browser
	router.Post("/graphql/*", middleware.NoCache(relay).ServeHTTP)
	if AllowIntrospection() {
		path := "/graphql"
		if config.Service.Subpath != "" {
			path = fmt.Sprintf("/%v/graphql", config.Service.Subpath)
		}
		router.Get("/graphql", graphiql.New(path))
	}
	return nil
}

// Construct an http relay that handles graphql requests
func GraphQLRelay(resolver Resolver) (*relay.Handler, error) {
	finalSchema := resolver.Schema()

	config := resolver.Config()
	config.Service.Schema = finalSchema

	opts := []graphql.SchemaOpt{
		graphql.MaxDepth(15),
		graphql.UseFieldResolvers(),
	}
	if !AllowIntrospection() {
		opts = append(opts, graphql.DisableIntrospection())
	}

	schema, err := graphql.ParseSchema(finalSchema, resolver, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse schema: %w", err)
	}

	return &relay.Handler{Schema: schema}, nil
}
