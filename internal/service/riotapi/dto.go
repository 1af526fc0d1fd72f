package riotapi

// DTOs mirror the vendor payloads. Unknown fields are tolerated by the
// decoder; fields tagged required cause a Fatal result when absent.

// AccountDTO is the account-v1 payload.
type AccountDTO struct {
	PUUID    string `json:"puuid" validate:"required"`
	GameName string `json:"gameName"`
	TagLine  string `json:"tagLine"`
}

// SummonerDTO is the summoner-v4 payload.
type SummonerDTO struct {
	ID            string `json:"id" validate:"required"`
	AccountID     string `json:"accountId"`
	PUUID         string `json:"puuid" validate:"required"`
	SummonerLevel int64  `json:"summonerLevel"`
	ProfileIconID int    `json:"profileIconId"`
	RevisionDate  int64  `json:"revisionDate"`
}

// LeagueEntryDTO is one league-v4 queue entry.
type LeagueEntryDTO struct {
	LeagueID     string `json:"leagueId"`
	QueueType    string `json:"queueType" validate:"required"`
	Tier         string `json:"tier"`
	Rank         string `json:"rank"`
	SummonerID   string `json:"summonerId"`
	LeaguePoints int    `json:"leaguePoints"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
	HotStreak    bool   `json:"hotStreak"`
	Veteran      bool   `json:"veteran"`
	FreshBlood   bool   `json:"freshBlood"`
	Inactive     bool   `json:"inactive"`
}

// MatchDTO is the match-v5 payload. Participant identity is positional:
// metadata.participants[i] names the puuid of info.participants[i].
type MatchDTO struct {
	Metadata MatchMetadataDTO `json:"metadata" validate:"required"`
	Info     MatchInfoDTO     `json:"info" validate:"required"`
}

type MatchMetadataDTO struct {
	MatchID      string   `json:"matchId" validate:"required"`
	Participants []string `json:"participants" validate:"required,min=2,max=10,dive,required"`
}

type MatchInfoDTO struct {
	GameCreation int64                `json:"gameCreation" validate:"required"`
	GameDuration int64                `json:"gameDuration"`
	GameEndTs    int64                `json:"gameEndTimestamp"`
	GameMode     string               `json:"gameMode"`
	GameVersion  string               `json:"gameVersion"`
	QueueID      int                  `json:"queueId"`
	Participants []MatchParticipantDTO `json:"participants" validate:"required,min=2,max=10,dive"`
}

type MatchParticipantDTO struct {
	PUUID                       string `json:"puuid" validate:"required"`
	TeamID                      int    `json:"teamId"`
	ChampionID                  int    `json:"championId"`
	ChampionName                string `json:"championName"`
	TeamPosition                string `json:"teamPosition"`
	Kills                       int    `json:"kills"`
	Deaths                      int    `json:"deaths"`
	Assists                     int    `json:"assists"`
	TotalMinionsKilled          int    `json:"totalMinionsKilled"`
	NeutralMinionsKilled        int    `json:"neutralMinionsKilled"`
	GoldEarned                  int    `json:"goldEarned"`
	TotalDamageDealtToChampions int    `json:"totalDamageDealtToChampions"`
	VisionScore                 int    `json:"visionScore"`
	SummonerLevel               int    `json:"summonerLevel"`
	Win                         bool   `json:"win"`
}

// CreepScore is minion plus jungle camp kills.
func (p MatchParticipantDTO) CreepScore() int {
	return p.TotalMinionsKilled + p.NeutralMinionsKilled
}

// ActiveGameDTO is the spectator-v4 payload for a live game.
type ActiveGameDTO struct {
	GameID            int64                      `json:"gameId" validate:"required"`
	GameMode          string                     `json:"gameMode"`
	GameQueueConfigID int64                      `json:"gameQueueConfigId"`
	MapID             int64                      `json:"mapId"`
	GameStartTime     int64                      `json:"gameStartTime"`
	GameLength        int64                      `json:"gameLength"`
	PlatformID        string                     `json:"platformId"`
	Participants      []ActiveGameParticipantDTO `json:"participants"`
}

type ActiveGameParticipantDTO struct {
	PUUID      string `json:"puuid"`
	SummonerID string `json:"summonerId"`
	ChampionID int64  `json:"championId"`
	TeamID     int64  `json:"teamId"`
}

// MatchIDsOptions filters a match-id listing. Zero values are omitted
// from the query. Times are unix seconds per the vendor contract.
type MatchIDsOptions struct {
	Start     int
	Count     int
	Queue     int
	Type      string
	StartTime int64
	EndTime   int64
}
