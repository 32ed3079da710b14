package flowroute

// Version is the released version string of this module, printed by
// "flowroute version" and recorded nowhere else (it is not echoed into
// checkpoints; RunConfig.Compatible is what guards a restart).
const Version = "0.1.0"
