// Package spec defines the declarative specification that describes a wrapped
// project: one backend (a command-line process or an HTTP API) and the tools
// exposed against it.
//
// Specifications are loaded from YAML or JSON files (YAML is a superset of
// JSON, so both load through the same decoder) and validated once at load
// time. After a successful [Load] the specification is immutable and every
// tool descriptor is well-typed: backend kinds and parameter types are
// discriminated values, and every template placeholder resolves to a declared
// parameter. The adapter engine never sees a partially valid specification.
//
// A minimal command-line specification:
//
//	name: timeserver
//	backend:
//	  type: commandline
//	  config:
//	    command: ./server
//	    ready_signal: "Server started. Waiting for input..."
//	    startup_timeout: 10
//	tools:
//	  - name: get_time
//	    description: Returns the current time.
//	    args: ["time"]
//
// And an HTTP one:
//
//	name: petstore
//	backend:
//	  type: http
//	  config:
//	    base_url: https://petstore.example.com
//	    timeout: 15
//	tools:
//	  - name: get_pet
//	    description: Fetch a pet by id.
//	    request: {method: GET, path: /pets/{id}}
//	    parameters:
//	      - {name: id, type: number, required: true}
package spec
