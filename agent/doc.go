// Package agent contains the participants of a roundtable session.
//
// Two variants implement core.Agent:
//
//  1. GenericAgent renders a role template, asks the text generation gateway
//     for a reply, records memory according to the template and answers the
//     sender.
//  2. PlannerAgent owns the goal. On the first message from the user it
//     spawns one agent per pipeline stage, then routes accepted stage output
//     to the next stage and bounces off-topic output back to its author.
//
// Roles are data: a RoleTemplate carries the prompt and the memory entries a
// role records, so adding a role needs no new type. Agents never touch the
// mailbox; React returns the messages to send and the engine sends them.
//
// Both variants are safe for concurrent React calls.
package agent
