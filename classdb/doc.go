// Package classdb holds the engine API description: the classes a native
// engine exposes, their methods with signature hashes, virtual members and
// signals.
//
// A description is a YAML (or JSON) document:
//
//	version: "4.2.0"
//	classes:
//	  - name: Object
//	    methods:
//	      - name: get_class
//	        return: String
//	  - name: Node
//	    parent: Object
//	    methods:
//	      - name: add_child
//	        args: [{name: child, type: Node}]
//	      - name: _ready
//	        virtual: true
//	    signals:
//	      - name: renamed
//
// Argument and return types are variant type names or class names; a class
// name is an Object typed to that class. Methods without an explicit hash
// get SignatureHash of their canonical signature.
package classdb
