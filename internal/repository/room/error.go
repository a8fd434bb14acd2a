package room

import "errors"

var ErrRoomFull = errors.New("room is full")
