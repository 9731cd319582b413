package engine

// buildSnapshot assembles the read-only view handed back over snapshotC.
// Called only from the run goroutine itself, so every field it reads needs
// no additional locking (§4.G "cheap, no locks held on the hot path").
func (e *Engine) buildSnapshot() Snapshot {
	if e.source == SourceCloud {
		return e.buildCloudSnapshot()
	}

	s := Snapshot{
		ID:              e.id,
		Name:            e.name,
		Source:          e.source,
		State:           e.state,
		InfoHash:        e.infoHash,
		BytesDownloaded: e.bytesDown,
		BytesUploaded:   e.bytesUp,
		AddedAt:         e.addedAt,
		LastError:       e.lastErr,
	}
	if e.have != nil {
		s.PiecesTotal = e.have.Len()
		s.PiecesComplete = e.have.Count()
		s.Pieces = make([]PieceState, e.have.Len())
		for i := 0; i < e.have.Len(); i++ {
			ps := PieceState{Index: i, Have: e.have.Test(i)}
			if !ps.Have {
				if a, ok := e.assemblers[i]; ok {
					ps.InProgress = true
					ps.BlocksReceived = a.BlocksReceived()
					ps.BlocksTotal = len(a.Piece.Blocks)
				}
			}
			s.Pieces[i] = ps
		}
	}
	s.DownloadRate = e.downEWMA.Rate()
	s.UploadRate = e.upEWMA.Rate()

	for key, pe := range e.peers {
		s.Peers = append(s.Peers, PeerStatus{
			Address:        key,
			ClientName:     pe.ClientName,
			AmChoking:      pe.AmChoking,
			AmInterested:   pe.AmInterested,
			PeerChoking:    pe.PeerChoking,
			PeerInterested: pe.PeerInterested,
			Snubbed:        pe.Snubbed,
			DownloadRate:   pe.DownloadRate(),
			UploadRate:     pe.UploadRate(),
		})
	}

	s.Trackers = e.trackerSnapshots()

	if e.sto != nil {
		for i, f := range e.sto.Files() {
			s.Files = append(s.Files, FileStatus{
				Index:         i,
				RelPath:       f.RelPath,
				Size:          f.Size,
				BytesComplete: f.BytesComplete(),
				Priority:      f.Priority(),
			})
		}
	}
	return s
}

func (e *Engine) buildCloudSnapshot() Snapshot {
	s := Snapshot{
		ID:              e.id,
		Name:            e.name,
		Source:          e.source,
		State:           e.state,
		InfoHash:        e.infoHash,
		BytesDownloaded: e.cloudBytes,
		AddedAt:         e.addedAt,
		LastError:       e.lastErr,
		Files:           e.cloudFiles,
	}
	if e.cloudTotal > 0 {
		s.PiecesTotal = 1
		if e.cloudBytes >= e.cloudTotal {
			s.PiecesComplete = 1
		}
	}
	return s
}
