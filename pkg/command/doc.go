// Package command maps the names used in job commands to executable handlers.
//
// A job's command string is resolved by its first whitespace-separated token.
// Handlers receive the job's args map; typed functions can be adapted with
// Func, which decodes the map into the function's argument struct.
//
//	reg := command.NewRegistry()
//	reg.Register("greet", command.MustFunc(func(a struct{ Name string }) (string, error) {
//	    return "hello " + a.Name, nil
//	}))
package command
