// Package rest exposes the tables of each data service as REST resources.
//
// Tables are served at /{service}/{table}; records with a single primary key
// also at /{service}/{table}/{id}. Statements are rendered in the dialect of
// the service (SQL Server, PostgreSQL or MySQL) and every request passes
// through the event lifecycle, so scripts can rewrite the request, replace
// the response or stop processing.
//
// Query parameters control filtering, pagination, and ordering:
//
//	Parameter              | Description
//	-----------------------|------------------------------------------------
//	?fields=col1,col2      | Select specific columns (alias: select)
//	?col=eq.val            | Filter by column equality
//	?col=neq.val           | Filter by inequality
//	?col=gt.val            | Filter with greater than comparison
//	?col=gte.val           | Filter with greater than or equal comparison
//	?col=lt.val            | Filter with less than comparison
//	?col=lte.val           | Filter with less than or equal comparison
//	?col=like.val          | Filter with pattern matching
//	?col=in.(a,b,c)        | Filter with value lists
//	?col=is.null           | Filter for null values
//	?filter=a=eq.1;b=lt.2  | Filters in one parameter, combined with AND
//	?ids=1,2,3             | Select by primary key
//	?order=col.desc        | Order results (supports nullsfirst/nullslast)
//	?limit=100             | Limit results (capped by maxRecordsReturned)
//	?offset=0              | Pagination offset
//	?include_count=true    | Wrap the result and add meta.count
//
// HTTP headers control response format for POST/PATCH/DELETE operations:
//
//	Header                         | Description
//	-------------------------------|----------------------------------------
//	Prefer: return=representation  | Return affected rows (default)
//	Prefer: return=minimal         | Return 204 without body
//	Prefer: count=exact            | Same as include_count on GET
//
// Example usage:
//
//	registry := service.NewRegistry(logger)
//	if _, err := registry.Add(ctx, service.Config{Name: "db", Driver: "sqlsrv", DSN: dsn}); err != nil {
//		log.Fatal(err)
//	}
//	r := httputil.NewRouter()
//	rest.NewServer(registry, pipeline, rest.Config{}, logger).Register(r.Group("/api/v2"))
//	log.Fatal(r.ListenAndServe(":8080"))
package rest
