// Package probe answers one question about a device: is it reachable right now?
//
// Two implementations are provided:
//
//   - ICMPProber sends ICMP echo requests itself using golang.org/x/net/icmp.
//     By default it uses unprivileged datagram ICMP sockets ("udp4"), which
//     Linux allows when net.ipv4.ping_group_range covers the process group.
//     With privileged set it uses raw sockets and needs CAP_NET_RAW.
//   - ExecProber runs the system ping binary and reads its exit status.
//
// Every probe is bounded: each of the configured attempts waits at most the
// configured timeout, and the caller's context cancels the whole probe.
// Callers treat a returned error exactly like an unreachable device.
package probe
