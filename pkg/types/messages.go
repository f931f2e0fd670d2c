package types

// Client -> Server
// join_room:
//   room_id: string
//
// set_ready:
//   ready: boolean
//
// vote_start:
//   target_user_id: number
//
// vote_answer:
//   vote: boolean // true = guilty, false = innocent
//
// spy_guess:
//   location: string
//
// kick_player: // room creator only
//   target_user_id: number

// Server -> Client
// room_state (also spelled room_update):
//   full RoomState snapshot, see snapshot.go
//
// game_started:
//   room_id: string
//   my_role: { role: "spy" | "local", location?: string, location_role?: string }
//   timer_end: number // unix seconds
//   spy_count: number
//
// error:
//   message: string
//
// player_joined | player_left | voting_started | voting_result | game_finished:
//   either a full RoomState snapshot (carries room_id) or an
//   informational stub the client ignores
