package wire

import "math"

// MaxReliablePayload is the largest accepted reliable-frame payload
//: 1 MiB.
const MaxReliablePayload = 1 << 20

// DatagramSendCap is the conservative send-side cap that avoids IP
// fragmentation.
const DatagramSendCap = 1200

// DatagramReceiveCap is the theoretical IPv4 UDP payload ceiling
// (65507 = 65535 - 8 byte UDP header - 20 byte IPv4 header).
const DatagramReceiveCap = 65507

// EncodeMessage serializes m into a tag byte followed by its fields.
// It never fails for in-domain values produced by this package; the error
// return reports the checked preconditions (string field length, snapshot
// entity count) and a message type this package does not know.
func EncodeMessage(m Message) ([]byte, error) {
	w := NewWriter(64)
	w.WriteByte(byte(m.Tag()))

	switch v := m.(type) {
	case ConnectRequest:
		if err := checkStringLen(v.PlayerName); err != nil {
			return nil, err
		}
		w.WriteString(v.PlayerName)
	case RegisterUDP:
		w.WriteInt64(v.ClientID)
	case Input:
		w.WriteInt64(v.ClientID)
		w.WriteByte(byte(v.Action))
		w.WriteFloat32(v.Point.X)
		w.WriteFloat32(v.Point.Y)
	case RequestEntitySpawn:
		if err := checkStringLen(v.EntityName); err != nil {
			return nil, err
		}
		w.WriteString(v.EntityName)
	case ConnectAck:
		w.WriteInt64(v.ClientID)
	case ConnectReject:
		if err := checkStringLen(v.Reason); err != nil {
			return nil, err
		}
		w.WriteString(v.Reason)
	case LevelChange:
		if err := checkStringLen(v.LevelName); err != nil {
			return nil, err
		}
		w.WriteString(v.LevelName)
		w.WriteBool(v.HasSpawnPoint)
		if v.HasSpawnPoint {
			w.WriteFloat32(v.SpawnPoint.X)
			w.WriteFloat32(v.SpawnPoint.Y)
		}
	case EntitySpawnEvent:
		for _, s := range []string{v.EntityName, v.TexturePath, v.Animation} {
			if err := checkStringLen(s); err != nil {
				return nil, err
			}
		}
		w.WriteString(v.EntityName)
		w.WriteFloat32(v.Position.X)
		w.WriteFloat32(v.Position.Y)
		w.WriteByte(byte(v.ViewDir))
		w.WriteString(v.TexturePath)
		w.WriteString(v.Animation)
		w.WriteUint32(v.Tint)
	case Snapshot:
		w.WriteInt64(v.ServerTick)
		if len(v.Entities) > math.MaxUint16 {
			return nil, constraintErrf("snapshot entity count %d exceeds wire limit", len(v.Entities))
		}
		w.WriteUint16(uint16(len(v.Entities)))
		for _, e := range v.Entities {
			if err := checkStringLen(e.Name); err != nil {
				return nil, err
			}
			if err := checkStringLen(e.Animation); err != nil {
				return nil, err
			}
			encodeEntityState(w, e)
		}
	case GameOver:
		// no fields
	default:
		return nil, decodeErrf("EncodeMessage: unknown message type %T", m)
	}

	return w.Bytes(), nil
}

func encodeEntityState(w *Writer, e EntityState) {
	w.WriteString(e.Name)
	w.WriteFloat32(e.Position.X)
	w.WriteFloat32(e.Position.Y)

	w.WriteBool(e.HasViewDir)
	if e.HasViewDir {
		w.WriteByte(byte(e.ViewDir))
	}

	w.WriteBool(e.HasHealth)
	if e.HasHealth {
		w.WriteInt32(e.Health)
		w.WriteInt32(e.MaxHealth)
	}

	w.WriteBool(e.HasAnimation)
	if e.HasAnimation {
		w.WriteString(e.Animation)
	}

	w.WriteBool(e.HasTint)
	if e.HasTint {
		w.WriteUint32(e.Tint)
	}
}

func checkStringLen(s string) error {
	if len(s) > math.MaxUint16 {
		return constraintErrf("string field too long: %d bytes", len(s))
	}
	return nil
}

// DecodeMessage parses a tag byte and its fields. It returns a DecodeError
// for an unknown tag or a structurally truncated payload; it never
// validates field values (e.g. an out-of-range ViewDir decodes cleanly —
// the translator decides whether to apply it).
func DecodeMessage(payload []byte) (Message, error) {
	if len(payload) == 0 {
		return nil, decodeErrf("DecodeMessage: empty payload")
	}

	r := NewReader(payload[1:])
	switch Tag(payload[0]) {
	case TagConnectRequest:
		name, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		return ConnectRequest{PlayerName: name}, nil

	case TagRegisterUDP:
		id, err := r.ReadInt64()
		if err != nil {
			return nil, err
		}
		return RegisterUDP{ClientID: id}, nil

	case TagInput:
		id, err := r.ReadInt64()
		if err != nil {
			return nil, err
		}
		actionByte, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		x, err := r.ReadFloat32()
		if err != nil {
			return nil, err
		}
		y, err := r.ReadFloat32()
		if err != nil {
			return nil, err
		}
		return Input{ClientID: id, Action: Action(actionByte), Point: Point{X: x, Y: y}}, nil

	case TagRequestEntitySpawn:
		name, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		return RequestEntitySpawn{EntityName: name}, nil

	case TagConnectAck:
		id, err := r.ReadInt64()
		if err != nil {
			return nil, err
		}
		return ConnectAck{ClientID: id}, nil

	case TagConnectReject:
		reason, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		return ConnectReject{Reason: reason}, nil

	case TagLevelChange:
		name, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		hasSpawn, err := r.ReadBool()
		if err != nil {
			return nil, err
		}
		lc := LevelChange{LevelName: name, HasSpawnPoint: hasSpawn}
		if hasSpawn {
			x, err := r.ReadFloat32()
			if err != nil {
				return nil, err
			}
			y, err := r.ReadFloat32()
			if err != nil {
				return nil, err
			}
			lc.SpawnPoint = Point{X: x, Y: y}
		}
		return lc, nil

	case TagEntitySpawnEvt:
		return decodeEntitySpawnEvent(r)

	case TagSnapshot:
		return decodeSnapshot(r)

	case TagGameOver:
		return GameOver{}, nil

	default:
		return nil, decodeErrf("unknown tag %#x", payload[0])
	}
}

func decodeEntitySpawnEvent(r *Reader) (Message, error) {
	name, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	x, err := r.ReadFloat32()
	if err != nil {
		return nil, err
	}
	y, err := r.ReadFloat32()
	if err != nil {
		return nil, err
	}
	dir, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	texture, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	anim, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	tint, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	return EntitySpawnEvent{
		EntityName: name,
		Position: Point{X: x, Y: y},
		ViewDir: ViewDir(dir),
		TexturePath: texture,
		Animation: anim,
		Tint: tint,
	}, nil
}

func decodeSnapshot(r *Reader) (Message, error) {
	tick, err := r.ReadInt64()
	if err != nil {
		return nil, err
	}
	count, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	entities := make([]EntityState, 0, count)
	for range count {
		e, err := decodeEntityState(r)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return Snapshot{ServerTick: tick, Entities: entities}, nil
}

func decodeEntityState(r *Reader) (EntityState, error) {
	var e EntityState

	name, err := r.ReadString()
	if err != nil {
		return e, err
	}
	e.Name = name

	x, err := r.ReadFloat32()
	if err != nil {
		return e, err
	}
	y, err := r.ReadFloat32()
	if err != nil {
		return e, err
	}
	e.Position = Point{X: x, Y: y}

	hasDir, err := r.ReadBool()
	if err != nil {
		return e, err
	}
	if hasDir {
		dir, err := r.ReadByte()
		if err != nil {
			return e, err
		}
		e.HasViewDir = true
		e.ViewDir = ViewDir(dir)
	}

	hasHealth, err := r.ReadBool()
	if err != nil {
		return e, err
	}
	if hasHealth {
		cur, err := r.ReadInt32()
		if err != nil {
			return e, err
		}
		max, err := r.ReadInt32()
		if err != nil {
			return e, err
		}
		e.HasHealth = true
		e.Health = cur
		e.MaxHealth = max
	}

	hasAnim, err := r.ReadBool()
	if err != nil {
		return e, err
	}
	if hasAnim {
		anim, err := r.ReadString()
		if err != nil {
			return e, err
		}
		e.HasAnimation = true
		e.Animation = anim
	}

	hasTint, err := r.ReadBool()
	if err != nil {
		return e, err
	}
	if hasTint {
		tint, err := r.ReadUint32()
		if err != nil {
			return e, err
		}
		e.HasTint = true
		e.Tint = tint
	}

	return e, nil
}
