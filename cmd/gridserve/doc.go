// Gridserve is an HTTP server for files kept in MongoDB GridFS (or, for
// development, in S3, a Bolt database, or a directory).
//
// Requests for paths of the form "/<prefix>/<identifier>" are answered with
// the file the identifier names, looked up as an object ID or as a file name
// depending on configuration. If there is no such file and the identifier
// looks like that of an avatar or image, a default file is served in its
// place. Otherwise the response is 404 with body "File not found.".
//
// The server also answers "/healthz" and exposes Prometheus metrics at
// "/metrics". Anything else is 404.
//
// Configuration is read from the file given with -config, in rjson format, for
// example:
//
//	{
//		database: "assets"
//		prefix: "gridfs"
//		lookup: "path"
//		fallback_rules: "image"
//	}
package main // import "github.com/nicolagi/gridserve/cmd/gridserve"
