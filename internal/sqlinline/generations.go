package sqlinline

const QInsertGeneration = `--sql f77c73b7-9ceb-4df3-9c66-bf623d1cfde5
insert into generations(
  id,
  prompt,
  model,
  aspect_ratio,
  duration_seconds,
  operation_name,
  status,
  country,
  started_at,
  created_at,
  updated_at
)
values (
  $1::uuid,
  $2::text,
  $3::text,
  $4::text,
  $5::int,
  $6::text,
  $7::text,
  nullif($8::text, ''),
  $9::timestamptz,
  now(),
  now()
);
`

const QFinishGeneration = `--sql b41b7b8f-261b-424f-a770-648f1c4ee15d
update generations
set status = $2::text,
    failure_class = nullif($3::text, ''),
    failure_message = nullif($4::text, ''),
    artifact_uri = nullif($5::text, ''),
    artifact_bytes = nullif($6::bigint, 0),
    finished_at = $7::timestamptz,
    updated_at = now()
where id = $1::uuid;
`

const QSelectGenerationByID = `--sql 261931af-0dc1-4715-955e-ddf3ed77c6b4
select
  id,
  prompt,
  model,
  aspect_ratio,
  duration_seconds,
  coalesce(operation_name, ''),
  status,
  coalesce(failure_class, ''),
  coalesce(failure_message, ''),
  coalesce(artifact_uri, ''),
  coalesce(artifact_bytes, 0),
  coalesce(country, ''),
  started_at,
  finished_at
from generations
where id = $1::uuid
limit 1;
`

const QListGenerations = `--sql 184d3783-d1b0-4aef-b47e-d7e0e103d40e
select
  id,
  prompt,
  model,
  aspect_ratio,
  duration_seconds,
  coalesce(operation_name, ''),
  status,
  coalesce(failure_class, ''),
  coalesce(failure_message, ''),
  coalesce(artifact_uri, ''),
  coalesce(artifact_bytes, 0),
  coalesce(country, ''),
  started_at,
  finished_at
from generations
order by started_at desc
limit $1::int offset $2::int;
`
