package types

// Version is the canonical project version.
// All components (CLI, wire client, report format) share this version
// per the lockstep versioning policy.
//
// This version is authoritative. Docs must reference this constant.
const Version = "0.3.0"
