/*
Package supervisor starts, watches and restarts child processes. Supervisors
nest into supervision trees: a supervisor is itself a child of another one.

A supervisor traps exits and links to every child it starts. When a child exits
its [Restart] policy decides whether it comes back, and the supervisor's
[Strategy] decides which other children are restarted with it. Restarts are
limited by the intensity in [SupFlagsS]: more than Intensity restarts within
Period seconds and the supervisor stops all its children and exits, leaving the
problem to its own supervisor.

	children := []supervisor.ChildSpec{
		supervisor.NewChildSpec("db", startDB),
		supervisor.NewChildSpec("api", startAPI, supervisor.SetRestart(supervisor.Transient)),
	}
	sup, err := supervisor.StartDefaultLink(self, children,
		supervisor.NewSupFlags(supervisor.SetStrategy(supervisor.RestForOne)))
*/
package supervisor
