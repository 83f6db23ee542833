package utils

//PersonClass is the COCO class id of a person (players, referees)
const PersonClass = 0

//BallClass is the COCO class id of a sports ball, the only class the ball filter consumes
const BallClass = 32

//FrisbeeClass is the COCO class id of a frisbee, round objects the model sometimes confuses with a ball
const FrisbeeClass = 37

//BallHistoryLength is the number of per-frame best balls kept for trajectory analysis
const BallHistoryLength = 30

//MaxSavedClips is the number of highlight clips kept by the in-memory clip store
const MaxSavedClips = 50

//ClipWindowSeconds is how far back a highlight clip reaches before the event frame
const ClipWindowSeconds = 10.0

//StreamTrajectoryPoints is the number of recent trajectory positions sent on each websocket reply
const StreamTrajectoryPoints = 5

//StreamMaxBalls is the number of balls a websocket reply carries at most
const StreamMaxBalls = 3

//GoalScoredText is printed on frames where the ball center is inside a goal
const GoalScoredText = "GOAL SCORED!"

//ContactText is printed on frames where the ball touches a goal frame
const ContactText = "CONTACT!"
