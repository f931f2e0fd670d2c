package types

// RoomState:
//   room_id: string
//   status: "waiting" | "playing" | "voting" | "finished"
//   players: { [userId]: Player } // Player has user_id|tg_id|username|avatar_url|is_ready
//   location: { name, image_url, roles } // only at "finished"
//   spy_ids: number[] // only at "finished"
//   timer_end: number // unix seconds, present once playing
//   voting: { target_user_id, votes: { [userId]: boolean }, started_at } // only while "voting"
//   winner: "spy" | "locals" // only at "finished"
//   deck_id: number
//   deck_name: string
//   max_players: number
//   spy_count: number
//   duration: number // minutes
//   created_by: number // userId of the room creator
//   created_at: string
